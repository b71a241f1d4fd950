// Package engine composes validation, analysis, dispatch and bounded
// execution into the single public entry point of the solver service.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/snow-ghost/fusion/batch"
	"github.com/snow-ghost/fusion/core"
	"github.com/snow-ghost/fusion/pkg/logging"
	"github.com/snow-ghost/fusion/pkg/metrics"
	"github.com/snow-ghost/fusion/pkg/tracing"
	"github.com/snow-ghost/fusion/registry"
	"github.com/snow-ghost/fusion/telemetry"
)

// Engine owns the solve pipeline: validate, classify, dispatch to the
// registry, aggregate. It is safe for concurrent use once constructed.
type Engine struct {
	validator core.Validator
	analyzer  core.Analyzer
	reg       *registry.Registry

	budget         core.Budget
	maxConcurrency int

	tel    *telemetry.Telemetry
	pm     *metrics.PrometheusMetrics
	tracer *tracing.Tracer
	alog   *logging.Logger
}

type Option func(*Engine)

// WithBudget sets the default per-solve budget used when the caller
// supplies none.
func WithBudget(b core.Budget) Option {
	return func(e *Engine) { e.budget = b }
}

// WithMaxConcurrency caps in-flight items during batch processing.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) { e.maxConcurrency = n }
}

// WithTelemetry attaches expvar counters and structured solve logging.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(e *Engine) { e.tel = t }
}

// WithPrometheus attaches Prometheus counters and histograms.
func WithPrometheus(m *metrics.PrometheusMetrics) Option {
	return func(e *Engine) { e.pm = m }
}

// WithTracer attaches OpenTelemetry spans to solves and batches.
func WithTracer(t *tracing.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithAccessLog logs every solve and every procedure attempt through the
// structured logger.
func WithAccessLog(l *logging.Logger) Option {
	return func(e *Engine) { e.alog = l }
}

func New(v core.Validator, a core.Analyzer, reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		validator:      v,
		analyzer:       a,
		reg:            reg,
		budget:         core.Budget{Timeout: 5 * time.Second},
		maxConcurrency: 4,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SolveOptions tune one solve call. The zero value means: no hint, default
// budget, analysis enabled.
type SolveOptions struct {
	Hint         core.Category
	Budget       *core.Budget
	SkipAnalysis bool
}

// Result is the terminal answer for one problem. Satisfiable is nil when the
// verdict is unknown; Success is false only when the pipeline itself failed
// (rejected input, no capable procedure), never for an honest unknown.
type Result struct {
	ID              string                  `json:"id"`
	Success         bool                    `json:"success"`
	Satisfiable     *bool                   `json:"satisfiable"`
	Verdict         core.Verdict            `json:"verdict,omitempty"`
	Model           map[string]any          `json:"model,omitempty"`
	Solver          string                  `json:"solver,omitempty"`
	Explanation     string                  `json:"explanation,omitempty"`
	ExecutionTimeMS float64                 `json:"execution_time_ms"`
	Analysis        *core.AnalysisResult    `json:"analysis,omitempty"`
	Attempts        []core.ExecutionOutcome `json:"attempts,omitempty"`
	Error           string                  `json:"error,omitempty"`
}

// Solve runs the full pipeline on one problem text. Validation failure
// aborts before analysis; a returned error always comes with a Result
// carrying the same diagnosis, so HTTP and batch callers can surface it.
func (e *Engine) Solve(ctx context.Context, text string, opts SolveOptions) (*Result, error) {
	id := uuid.NewString()
	start := time.Now()

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.StartSolveSpan(ctx, id, string(opts.Hint))
		defer span.End()
	}

	sanitized, err := e.validator.Validate(text)
	if err != nil {
		if e.pm != nil {
			e.pm.RecordValidationRejected(err.Error())
		}
		if span != nil {
			tracing.RecordSpanError(span, err)
		}
		return &Result{
			ID:              id,
			Success:         false,
			Error:           err.Error(),
			ExecutionTimeMS: msSince(start),
		}, err
	}

	if w, ok := e.validator.(warner); ok {
		for _, msg := range w.Warnings(sanitized) {
			slog.WarnContext(ctx, "input warning", "problem_id", id, "warning", msg)
		}
	}

	p := core.Problem{ID: id, Text: sanitized, Hint: opts.Hint}
	if e.tel != nil {
		e.tel.LogSolveStart(ctx, p)
	}

	hint := opts.Hint
	var analysis *core.AnalysisResult
	if !opts.SkipAnalysis {
		ar := e.analyzer.Analyze(p)
		analysis = &ar
		if hint == "" {
			hint = ar.Category
		}
	}

	budget := e.budget
	if opts.Budget != nil {
		budget = *opts.Budget
	}

	res, attempts, err := e.reg.Solve(ctx, p, hint, budget)
	elapsed := time.Since(start)

	if e.tel != nil {
		e.tel.LogSolveEnd(ctx, p, res.Verdict, err, elapsed, len(attempts))
	}
	if e.pm != nil {
		category := string(hint)
		if category == "" {
			category = string(core.CategoryUnknown)
		}
		verdict := string(res.Verdict)
		if err != nil {
			verdict = "error"
		}
		e.pm.RecordSolve(category, verdict, elapsed)
		for _, o := range attempts {
			outcome := "ok"
			if o.Failed() {
				outcome = "failed"
			}
			if registry.IsBreakerOpen(o.Err) {
				outcome = "skipped"
				e.pm.RecordCircuitOpen(o.Procedure)
			}
			e.pm.RecordAttempt(o.Procedure, outcome, o.Elapsed)
		}
	}
	if e.alog != nil {
		for _, o := range attempts {
			e.alog.LogAttempt(ctx, id, o.Procedure, o.Elapsed, o.Err)
		}
		if err == nil {
			e.alog.LogSolve(ctx, id, res.SolverName, string(res.Verdict), elapsed, len(attempts))
		}
	}

	if err != nil {
		if span != nil {
			tracing.RecordSpanError(span, err)
		}
		return &Result{
			ID:              id,
			Success:         false,
			Error:           err.Error(),
			Analysis:        analysis,
			Attempts:        attempts,
			ExecutionTimeMS: msSince(start),
		}, err
	}

	if span != nil {
		tracing.RecordSpanVerdict(span, string(res.Verdict), res.SolverName)
		tracing.RecordSpanDuration(span, elapsed)
	}

	return &Result{
		ID:              id,
		Success:         true,
		Satisfiable:     res.Verdict.Satisfiable(),
		Verdict:         res.Verdict,
		Model:           res.Model,
		Solver:          res.SolverName,
		Explanation:     res.Explanation,
		Analysis:        analysis,
		Attempts:        attempts,
		ExecutionTimeMS: msSince(start),
	}, nil
}

// ProcessBatch solves many independent problems concurrently. One item's
// rejection or timeout never fails the batch; per-item outcomes keep input
// order.
func (e *Engine) ProcessBatch(ctx context.Context, items []batch.Item) (*batch.Result[*Result], error) {
	start := time.Now()
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.StartBatchSpan(ctx, len(items))
		defer span.End()
	}
	coord := batch.NewCoordinator[*Result](e.maxConcurrency, e.budget.Timeout)

	res, err := coord.Process(ctx, items, func(ctx context.Context, item batch.Item) (*Result, error) {
		r, err := e.Solve(ctx, item.Text, SolveOptions{Hint: item.Hint})
		if r != nil && item.ID != "" {
			r.ID = item.ID
		}
		// An UNKNOWN whose budget ran out is an honest answer for a single
		// solve, but a batch item that hit its deadline counts as timed out.
		if err == nil {
			if terr := exhaustedBudget(r); terr != nil {
				r.Success = false
				r.Error = terr.Error()
				err = terr
			}
		}
		return r, err
	})
	if err != nil {
		return nil, err
	}

	if e.tel != nil {
		e.tel.LogBatch(ctx, res.Total, res.Succeeded, res.Failed, res.TimedOut, time.Since(start))
	}
	if e.pm != nil {
		e.pm.RecordBatch(res.Succeeded, res.Failed-res.TimedOut, res.TimedOut)
	}
	return res, nil
}

// Procedures lists registered procedure names in candidate order.
func (e *Engine) Procedures() []string {
	return e.reg.Names()
}

// warner is the optional extension a validator can implement to surface
// non-fatal input warnings.
type warner interface {
	Warnings(text string) []string
}

// Info is a static description of the running engine.
type Info struct {
	Procedures     []string    `json:"procedures"`
	DefaultBudget  core.Budget `json:"default_budget"`
	MaxConcurrency int         `json:"max_concurrency"`
}

// Info describes the engine's registered procedures and defaults.
func (e *Engine) Info() Info {
	return Info{
		Procedures:     e.reg.Names(),
		DefaultBudget:  e.budget,
		MaxConcurrency: e.maxConcurrency,
	}
}

// exhaustedBudget reports whether a solve ended because its wall-clock
// budget ran out: the registry stops attempting once remaining time hits
// zero, so the last recorded attempt carries the timeout.
func exhaustedBudget(r *Result) *core.TimeoutError {
	if r == nil || len(r.Attempts) == 0 {
		return nil
	}
	var terr *core.TimeoutError
	if errors.As(r.Attempts[len(r.Attempts)-1].Err, &terr) {
		return terr
	}
	return nil
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}
