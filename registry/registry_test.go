package registry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/fusion/core"
	"github.com/snow-ghost/fusion/sandbox"
)

func TestIsBreakerOpen(t *testing.T) {
	require.False(t, IsBreakerOpen(nil))
	require.False(t, IsBreakerOpen(errors.New("boom")))
	require.False(t, IsBreakerOpen(&core.PluginError{Reason: "already registered"}))
	require.True(t, IsBreakerOpen(&core.PluginError{Procedure: "p", Reason: "circuit breaker open"}))
}

// fakeProc is a scripted procedure for registry tests.
type fakeProc struct {
	name     string
	priority int
	handles  bool
	verdict  core.Verdict
	delay    time.Duration
	fail     error
	calls    atomic.Int32
}

func (f *fakeProc) Name() string                               { return f.name }
func (f *fakeProc) Categories() []core.Category                { return []core.Category{core.CategoryGeneral} }
func (f *fakeProc) Priority() int                              { return f.priority }
func (f *fakeProc) CanHandle(core.Problem, core.Category) bool { return f.handles }
func (f *fakeProc) Explain(r core.SolverResult) string         { return r.Explanation }

func (f *fakeProc) Decide(ctx context.Context, p core.Problem, b core.Budget) (core.SolverResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return core.SolverResult{}, ctx.Err()
		}
	}
	if f.fail != nil {
		return core.SolverResult{}, f.fail
	}
	return core.SolverResult{Verdict: f.verdict, SolverName: f.name}, nil
}

func newTestRegistry(opts ...Option) *Registry {
	return New(sandbox.NewExecutor(sandbox.DefaultLimits(), nil), opts...)
}

var testProblem = core.NewProblem("x + y = 10 and x > 0", "")

func TestRegisterDuplicateFails(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&fakeProc{name: "p", handles: true}))

	err := r.Register(&fakeProc{name: "p", handles: true})
	var perr *core.PluginError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "p", perr.Procedure)
}

func TestRegisterAfterFirstSolveFails(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&fakeProc{name: "p", handles: true, verdict: core.VerdictSAT}))

	_, _, err := r.Solve(context.Background(), testProblem, "", core.Budget{Timeout: time.Second})
	require.NoError(t, err)

	err = r.Register(&fakeProc{name: "q", handles: true})
	var perr *core.PluginError
	require.True(t, errors.As(err, &perr))
	require.Contains(t, perr.Reason, "frozen")
}

func TestSolveZeroCandidatesIsPluginError(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&fakeProc{name: "deaf", handles: false}))

	_, outcomes, err := r.Solve(context.Background(), testProblem, core.CategoryGeneral, core.Budget{Timeout: time.Second})
	var perr *core.PluginError
	require.True(t, errors.As(err, &perr))
	require.Empty(t, outcomes)
}

func TestSolveNeverInvokesRejectedProcedure(t *testing.T) {
	r := newTestRegistry()
	rejected := &fakeProc{name: "rejected", handles: false, verdict: core.VerdictSAT}
	accepted := &fakeProc{name: "accepted", handles: true, verdict: core.VerdictSAT}
	require.NoError(t, r.Register(rejected))
	require.NoError(t, r.Register(accepted))

	_, _, err := r.Solve(context.Background(), testProblem, "", core.Budget{Timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, int32(0), rejected.calls.Load())
	require.Equal(t, int32(1), accepted.calls.Load())
}

func TestSolvePriorityOrderAndRegistrationTieBreak(t *testing.T) {
	r := newTestRegistry()
	low := &fakeProc{name: "low", priority: 10, handles: true, verdict: core.VerdictUnknown}
	firstTied := &fakeProc{name: "first-tied", priority: 5, handles: true, verdict: core.VerdictUnknown}
	secondTied := &fakeProc{name: "second-tied", priority: 5, handles: true, verdict: core.VerdictSAT}
	require.NoError(t, r.Register(low))
	require.NoError(t, r.Register(firstTied))
	require.NoError(t, r.Register(secondTied))

	res, outcomes, err := r.Solve(context.Background(), testProblem, "", core.Budget{Timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, core.VerdictSAT, res.Verdict)

	var attempted []string
	for _, o := range outcomes {
		attempted = append(attempted, o.Procedure)
	}
	require.Equal(t, []string{"first-tied", "second-tied"}, attempted)
	require.Equal(t, int32(0), low.calls.Load())
}

func TestSolveEarlyStopOnDefiniteVerdict(t *testing.T) {
	r := newTestRegistry()
	winner := &fakeProc{name: "winner", priority: 1, handles: true, verdict: core.VerdictUNSAT}
	spare := &fakeProc{name: "spare", priority: 2, handles: true, verdict: core.VerdictSAT}
	require.NoError(t, r.Register(winner))
	require.NoError(t, r.Register(spare))

	res, outcomes, err := r.Solve(context.Background(), testProblem, "", core.Budget{Timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, core.VerdictUNSAT, res.Verdict)
	require.Len(t, outcomes, 1)
	require.Equal(t, int32(0), spare.calls.Load())
}

func TestSolveFallsThroughUnknownAndFailures(t *testing.T) {
	r := newTestRegistry()
	unsure := &fakeProc{name: "unsure", priority: 1, handles: true, verdict: core.VerdictUnknown}
	broken := &fakeProc{name: "broken", priority: 2, handles: true, fail: errors.New("boom")}
	closer := &fakeProc{name: "closer", priority: 3, handles: true, verdict: core.VerdictSAT}
	require.NoError(t, r.Register(unsure))
	require.NoError(t, r.Register(broken))
	require.NoError(t, r.Register(closer))

	res, outcomes, err := r.Solve(context.Background(), testProblem, "", core.Budget{Timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, core.VerdictSAT, res.Verdict)
	require.Len(t, outcomes, 3)
	require.False(t, outcomes[0].Failed())
	require.True(t, outcomes[1].Failed())
	require.False(t, outcomes[2].Failed())
}

func TestSolveAllUnknownIsNotAnError(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&fakeProc{name: "a", handles: true, verdict: core.VerdictUnknown}))
	require.NoError(t, r.Register(&fakeProc{name: "b", handles: true, verdict: core.VerdictUnknown}))

	res, outcomes, err := r.Solve(context.Background(), testProblem, "", core.Budget{Timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, core.VerdictUnknown, res.Verdict)
	require.Len(t, outcomes, 2)
}

func TestSolveSharedBudgetAcrossAttempts(t *testing.T) {
	r := newTestRegistry()
	// sleeps past the whole budget, ignores nothing: honors ctx
	hog := &fakeProc{name: "hog", priority: 1, handles: true, delay: time.Second, verdict: core.VerdictSAT}
	starved := &fakeProc{name: "starved", priority: 2, handles: true, verdict: core.VerdictSAT}
	require.NoError(t, r.Register(hog))
	require.NoError(t, r.Register(starved))

	start := time.Now()
	res, outcomes, err := r.Solve(context.Background(), testProblem, "", core.Budget{Timeout: 150 * time.Millisecond})
	elapsed := time.Since(start)

	require.NoError(t, err)
	// the hog consumed the shared ceiling; whatever happened next, the whole
	// call must stay near the budget, not near budget * candidates
	require.Less(t, elapsed, 600*time.Millisecond)
	require.True(t, outcomes[0].Failed())
	if res.Verdict.Definite() {
		// starved may have squeezed in with near-zero budget
		require.Equal(t, "starved", res.SolverName)
	}
}

func TestSolveWithBreakersSkipsFlappingProcedure(t *testing.T) {
	r := newTestRegistry(WithBreakers())
	flaky := &fakeProc{name: "flaky", priority: 1, handles: true, fail: errors.New("boom")}
	require.NoError(t, r.Register(flaky))

	// enough consecutive failures to trip the breaker
	for i := 0; i < 6; i++ {
		_, _, err := r.Solve(context.Background(), testProblem, "", core.Budget{Timeout: 100 * time.Millisecond})
		require.NoError(t, err)
	}

	before := flaky.calls.Load()
	_, outcomes, err := r.Solve(context.Background(), testProblem, "", core.Budget{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, before, flaky.calls.Load(), "open breaker must skip the procedure")
	require.True(t, outcomes[0].Failed())
	require.Contains(t, outcomes[0].Error, "circuit breaker")
}

func TestNamesSortedByPriority(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&fakeProc{name: "fallback", priority: 100}))
	require.NoError(t, r.Register(&fakeProc{name: "specialized", priority: 10}))

	require.Equal(t, []string{"specialized", "fallback"}, r.Names())
}
