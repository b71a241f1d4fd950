package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/fusion/analyze"
	"github.com/snow-ghost/fusion/batch"
	"github.com/snow-ghost/fusion/core"
	"github.com/snow-ghost/fusion/pkg/logging"
	"github.com/snow-ghost/fusion/procs/boolproc"
	"github.com/snow-ghost/fusion/procs/diophantine"
	"github.com/snow-ghost/fusion/procs/presburger"
	"github.com/snow-ghost/fusion/registry"
	"github.com/snow-ghost/fusion/sandbox"
	"github.com/snow-ghost/fusion/validate"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()

	v, err := validate.New(validate.DefaultConfig())
	require.NoError(t, err)

	exec := sandbox.NewExecutor(sandbox.DefaultLimits(), nil)
	reg := registry.New(exec)
	require.NoError(t, reg.Register(presburger.New(10)))
	require.NoError(t, reg.Register(boolproc.New(10)))
	require.NoError(t, reg.Register(diophantine.New(20)))

	return New(v, analyze.New(), reg, opts...)
}

func TestSolveEndToEnd(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Solve(context.Background(), "x + y = 10 and x > 0", SolveOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, core.VerdictSAT, res.Verdict)
	require.NotNil(t, res.Satisfiable)
	require.True(t, *res.Satisfiable)
	require.Equal(t, "presburger", res.Solver)
	require.NotEmpty(t, res.Model)
	require.NotEmpty(t, res.ID)
	require.NotNil(t, res.Analysis)
	require.Equal(t, core.CategoryPresburger, res.Analysis.Category)
	require.NotEmpty(t, res.Attempts)
}

func TestSolveUnsat(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Solve(context.Background(), "p and not p", SolveOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, core.VerdictUNSAT, res.Verdict)
	require.NotNil(t, res.Satisfiable)
	require.False(t, *res.Satisfiable)
	require.Equal(t, "boolsat", res.Solver)
}

func TestSolveUnknownIsSuccess(t *testing.T) {
	e := newTestEngine(t)

	// nonlinear equation: the Diophantine procedure accepts it but cannot settle it
	res, err := e.Solve(context.Background(), "x^3 + y^3 = z^3 and x > 0", SolveOptions{
		Hint: core.CategoryDiophantine,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, core.VerdictUnknown, res.Verdict)
	require.Nil(t, res.Satisfiable)
}

func TestSolveValidationAbortsBeforeAnalysis(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Solve(context.Background(), "__import__('os')", SolveOptions{})
	require.Error(t, err)
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)

	require.False(t, res.Success)
	require.Nil(t, res.Analysis)
	require.Empty(t, res.Attempts)
	require.NotEmpty(t, res.Error)
}

func TestSolveZeroCandidates(t *testing.T) {
	v, err := validate.New(validate.DefaultConfig())
	require.NoError(t, err)
	reg := registry.New(sandbox.NewExecutor(sandbox.DefaultLimits(), nil))
	require.NoError(t, reg.Register(boolproc.New(10)))
	e := New(v, analyze.New(), reg)

	// arithmetic text that boolsat refuses; no other procedure registered
	res, err := e.Solve(context.Background(), "x + y = 10", SolveOptions{})
	require.Error(t, err)
	var perr *core.PluginError
	require.ErrorAs(t, err, &perr)
	require.False(t, res.Success)
}

func TestSolveSkipAnalysis(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Solve(context.Background(), "x + y = 10 and x > 0", SolveOptions{
		Hint:         core.CategoryPresburger,
		SkipAnalysis: true,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Nil(t, res.Analysis)
	require.Equal(t, core.VerdictSAT, res.Verdict)
}

func TestSolveExplicitHintWinsOverAnalysis(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Solve(context.Background(), "3x + 6y = 9", SolveOptions{
		Hint: core.CategoryDiophantine,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "diophantine", res.Solver)
}

func TestProcessBatchPreservesOrder(t *testing.T) {
	e := newTestEngine(t, WithMaxConcurrency(2))

	items := []batch.Item{
		{ID: "a", Text: "x + y = 10 and x > 0"},
		{ID: "b", Text: "p and not p"},
		{ID: "c", Text: "__import__('os')"},
	}
	res, err := e.ProcessBatch(context.Background(), items)
	require.NoError(t, err)
	require.Equal(t, 3, res.Total)
	require.Equal(t, 2, res.Succeeded)
	require.Equal(t, 1, res.Failed)

	require.Equal(t, "a", res.Items[0].ID)
	require.Equal(t, core.VerdictSAT, res.Items[0].Value.Verdict)
	require.Equal(t, core.VerdictUNSAT, res.Items[1].Value.Verdict)
	require.True(t, res.Items[2].Failed())
}

// sleeperProc sleeps through its whole budget ignoring cancellation, so the
// sandbox abandons it at the deadline.
type sleeperProc struct {
	d time.Duration
}

func (s *sleeperProc) Name() string                               { return "sleeper" }
func (s *sleeperProc) Categories() []core.Category                { return []core.Category{core.CategoryGeneral} }
func (s *sleeperProc) Priority() int                              { return 10 }
func (s *sleeperProc) CanHandle(core.Problem, core.Category) bool { return true }
func (s *sleeperProc) Explain(core.SolverResult) string           { return "" }

func (s *sleeperProc) Decide(ctx context.Context, p core.Problem, b core.Budget) (core.SolverResult, error) {
	time.Sleep(s.d)
	return core.SolverResult{Verdict: core.VerdictUnknown, SolverName: s.Name()}, nil
}

func TestProcessBatchCountsTimedOutItems(t *testing.T) {
	v, err := validate.New(validate.DefaultConfig())
	require.NoError(t, err)
	reg := registry.New(sandbox.NewExecutor(sandbox.DefaultLimits(), nil))
	require.NoError(t, reg.Register(&sleeperProc{d: 500 * time.Millisecond}))
	e := New(v, analyze.New(), reg, WithBudget(core.Budget{Timeout: 100 * time.Millisecond}))

	start := time.Now()
	res, err := e.ProcessBatch(context.Background(), []batch.Item{{ID: "slow", Text: "x + y = 10"}})
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)

	require.Equal(t, 1, res.TimedOut)
	require.Equal(t, 1, res.Failed)
	require.Zero(t, res.Succeeded)
	require.True(t, res.Items[0].Failed())
	require.False(t, res.Items[0].Value.Success)
	require.NotEmpty(t, res.Items[0].Value.Error)
}

func TestProcessBatchEmptyIsError(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.ProcessBatch(context.Background(), nil)
	require.Error(t, err)
}

func TestProcedures(t *testing.T) {
	e := newTestEngine(t)
	// candidate order: priority ascending, registration order breaks ties
	require.Equal(t, []string{"presburger", "boolsat", "diophantine"}, e.Procedures())
}

func TestSolveWithAccessLog(t *testing.T) {
	lg, err := logging.NewLogger(logging.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	e := newTestEngine(t, WithAccessLog(lg))

	res, err := e.Solve(context.Background(), "p or q", SolveOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestInfo(t *testing.T) {
	e := newTestEngine(t, WithBudget(core.Budget{Timeout: 2 * time.Second}), WithMaxConcurrency(8))

	info := e.Info()
	require.Equal(t, []string{"presburger", "boolsat", "diophantine"}, info.Procedures)
	require.Equal(t, 2*time.Second, info.DefaultBudget.Timeout)
	require.Equal(t, 8, info.MaxConcurrency)

	rec := httptest.NewRecorder()
	e.InfoHandler(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "presburger")
}

func TestSolveHandler(t *testing.T) {
	e := newTestEngine(t)

	body, _ := json.Marshal(SolveRequest{Problem: "x + y = 10 and x > 0"})
	rec := httptest.NewRecorder()
	e.SolveHandler(rec, httptest.NewRequest(http.MethodPost, "/solve", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.Success)
	require.Equal(t, core.VerdictSAT, res.Verdict)
	require.Greater(t, res.ExecutionTimeMS, 0.0)
}

func TestSolveHandlerRejectsInvalidInput(t *testing.T) {
	e := newTestEngine(t)

	body, _ := json.Marshal(SolveRequest{Problem: "eval(something)"})
	rec := httptest.NewRecorder()
	e.SolveHandler(rec, httptest.NewRequest(http.MethodPost, "/solve", bytes.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.False(t, res.Success)
	require.NotEmpty(t, res.Error)
}

func TestSolveHandlerMethodNotAllowed(t *testing.T) {
	e := newTestEngine(t)
	rec := httptest.NewRecorder()
	e.SolveHandler(rec, httptest.NewRequest(http.MethodGet, "/solve", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSolveHandlerTimeoutOverride(t *testing.T) {
	e := newTestEngine(t)

	body, _ := json.Marshal(SolveRequest{Problem: "x + y = 10 and x > 0", TimeoutMS: 2000})
	rec := httptest.NewRecorder()
	e.SolveHandler(rec, httptest.NewRequest(http.MethodPost, "/solve", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBatchHandler(t *testing.T) {
	e := newTestEngine(t)

	body, _ := json.Marshal(BatchRequest{Problems: []batch.Item{
		{Text: "p or q"},
		{Text: "2x + 4y = 7", Hint: core.CategoryDiophantine},
	}})
	rec := httptest.NewRecorder()
	e.BatchHandler(rec, httptest.NewRequest(http.MethodPost, "/batch", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var res batch.Result[*Result]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, 2, res.Total)
	require.Equal(t, 2, res.Succeeded)
	require.Equal(t, core.VerdictSAT, res.Items[0].Value.Verdict)
	require.Equal(t, core.VerdictUNSAT, res.Items[1].Value.Verdict)
}

func TestBatchHandlerEmpty(t *testing.T) {
	e := newTestEngine(t)

	body, _ := json.Marshal(BatchRequest{})
	rec := httptest.NewRecorder()
	e.BatchHandler(rec, httptest.NewRequest(http.MethodPost, "/batch", bytes.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSolveRespectsBudgetOverride(t *testing.T) {
	e := newTestEngine(t)

	start := time.Now()
	tight := &core.Budget{Timeout: 50 * time.Millisecond}
	_, err := e.Solve(context.Background(), "x + y = 10 and x > 0", SolveOptions{Budget: tight})
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
}
