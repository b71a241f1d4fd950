// Package registry holds the registered decision procedures and drives the
// ordered-fallback solve loop under a single shared deadline.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/fusion/core"
)

const breakerOpenReason = "circuit breaker open"

// IsBreakerOpen reports whether an outcome error marks an attempt skipped
// behind an open circuit breaker.
func IsBreakerOpen(err error) bool {
	var perr *core.PluginError
	return errors.As(err, &perr) && perr.Reason == breakerOpenReason
}

type entry struct {
	proc  core.Procedure
	order int // registration order, breaks priority ties
}

// Registry implements capability-based dispatch. Registration is
// construction-time only: the procedure set freezes on the first Solve so
// the hot path needs no locking.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	byName  map[string]core.Procedure
	frozen  bool

	exec     core.Executor
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

type Option func(*Registry)

// WithBreakers shields the fallback loop from procedures that keep crashing
// or timing out: after repeated failures a procedure's breaker opens and its
// attempts are skipped (recorded as failed outcomes) until it half-opens.
func WithBreakers() Option {
	return func(r *Registry) {
		r.breakers = make(map[string]*gobreaker.CircuitBreaker)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func New(exec core.Executor, opts ...Option) *Registry {
	r := &Registry{
		byName: make(map[string]core.Procedure),
		exec:   exec,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a procedure. Duplicate names and registration after the
// first Solve are *core.PluginError.
func (r *Registry) Register(p core.Procedure) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return &core.PluginError{Procedure: p.Name(), Reason: "registry is frozen after first solve"}
	}
	if _, exists := r.byName[p.Name()]; exists {
		return &core.PluginError{Procedure: p.Name(), Reason: "already registered"}
	}

	r.byName[p.Name()] = p
	r.entries = append(r.entries, entry{proc: p, order: len(r.entries)})
	if r.breakers != nil {
		r.breakers[p.Name()] = newBreaker(p.Name(), r.logger)
	}
	return nil
}

// Names lists registered procedures in candidate order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := sortedEntries(r.entries)
	names := make([]string, 0, len(sorted))
	for _, e := range sorted {
		names = append(names, e.proc.Name())
	}
	return names
}

// Candidates returns the procedures whose CanHandle accepts the problem,
// ordered by ascending priority with registration order breaking ties.
func (r *Registry) Candidates(p core.Problem, hint core.Category) []core.Procedure {
	r.freeze()
	var capable []entry
	for _, e := range r.entries {
		if e.proc.CanHandle(p, hint) {
			capable = append(capable, e)
		}
	}
	sorted := sortedEntries(capable)
	procs := make([]core.Procedure, 0, len(sorted))
	for _, e := range sorted {
		procs = append(procs, e.proc)
	}
	return procs
}

// Solve iterates capable procedures in priority order until one returns a
// definite verdict or the shared budget runs out. The budget is a hard
// ceiling on the whole call, not a per-procedure quota: each attempt gets
// whatever wall time remains. UNKNOWN and failed attempts are recorded and
// the loop continues. Zero candidates is a *core.PluginError, distinct from
// "tried everything and got UNKNOWN".
func (r *Registry) Solve(ctx context.Context, p core.Problem, hint core.Category, b core.Budget) (core.SolverResult, []core.ExecutionOutcome, error) {
	candidates := r.Candidates(p, hint)
	if len(candidates) == 0 {
		return core.SolverResult{}, nil, &core.PluginError{
			Reason: fmt.Sprintf("no capable procedure for category %q", hint),
		}
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.Now().Add(timeout)

	outcomes := make([]core.ExecutionOutcome, 0, len(candidates))
	for _, proc := range candidates {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			outcomes = append(outcomes, core.ExecutionOutcome{
				Procedure: proc.Name(),
				Err:       &core.TimeoutError{Budget: timeout},
				Error:     "shared budget exhausted before attempt",
			})
			break
		}

		attempt := b
		attempt.Timeout = remaining
		outcome := r.attempt(ctx, proc, p, attempt)
		outcomes = append(outcomes, outcome)

		if outcome.Result != nil && outcome.Result.Verdict.Definite() {
			r.logger.InfoContext(ctx, "definite verdict",
				"procedure", proc.Name(),
				"verdict", outcome.Result.Verdict,
				"elapsed_ms", outcome.Elapsed.Milliseconds(),
			)
			return *outcome.Result, outcomes, nil
		}
		r.logger.DebugContext(ctx, "attempt inconclusive",
			"procedure", proc.Name(),
			"failed", outcome.Failed(),
		)
	}

	return core.SolverResult{
		Verdict:     core.VerdictUnknown,
		SolverName:  "registry",
		Explanation: fmt.Sprintf("no definite verdict from %d attempted procedure(s)", len(outcomes)),
	}, outcomes, nil
}

func (r *Registry) attempt(ctx context.Context, proc core.Procedure, p core.Problem, b core.Budget) core.ExecutionOutcome {
	if r.breakers == nil {
		return r.exec.Run(ctx, proc, p, b)
	}

	br := r.breakers[proc.Name()]
	v, err := br.Execute(func() (any, error) {
		outcome := r.exec.Run(ctx, proc, p, b)
		if outcome.Failed() {
			return outcome, outcome.Err
		}
		return outcome, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return core.ExecutionOutcome{
			Procedure: proc.Name(),
			Err:       &core.PluginError{Procedure: proc.Name(), Reason: breakerOpenReason},
			Error:     breakerOpenReason,
		}
	}
	outcome := v.(core.ExecutionOutcome)
	return outcome
}

func (r *Registry) freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func sortedEntries(entries []entry) []entry {
	sorted := make([]entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].proc.Priority() != sorted[j].proc.Priority() {
			return sorted[i].proc.Priority() < sorted[j].proc.Priority()
		}
		return sorted[i].order < sorted[j].order
	})
	return sorted
}

func newBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"procedure", name, "from", from.String(), "to", to.String())
		},
	})
}
