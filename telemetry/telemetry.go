// Package telemetry collects process-level counters and serves the
// health/metrics HTTP endpoints. Counters are exported through expvar so
// they appear under /debug/vars without extra wiring.
package telemetry

import (
	"context"
	"expvar"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/snow-ghost/fusion/core"
)

// Telemetry collects basic metrics and provides structured logging.
type Telemetry struct {
	mu sync.RWMutex

	SolvesTotal    *expvar.Int
	SolvesSat      *expvar.Int
	SolvesUnsat    *expvar.Int
	SolvesUnknown  *expvar.Int
	SolvesFailed   *expvar.Int
	AttemptsTotal  *expvar.Int
	BatchesTotal   *expvar.Int
	BatchItems     *expvar.Int
	AvgSolveTimeMS *expvar.Float

	totalSolveTime time.Duration

	logger *slog.Logger
}

// New creates a telemetry instance. Expvar names are process-global, so
// construct at most one per process.
func New(logger *slog.Logger) *Telemetry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Telemetry{
		SolvesTotal:    expvar.NewInt("solves_total"),
		SolvesSat:      expvar.NewInt("solves_sat"),
		SolvesUnsat:    expvar.NewInt("solves_unsat"),
		SolvesUnknown:  expvar.NewInt("solves_unknown"),
		SolvesFailed:   expvar.NewInt("solves_failed"),
		AttemptsTotal:  expvar.NewInt("attempts_total"),
		BatchesTotal:   expvar.NewInt("batches_total"),
		BatchItems:     expvar.NewInt("batch_items_total"),
		AvgSolveTimeMS: expvar.NewFloat("avg_solve_time_ms"),
		logger:         logger,
	}
}

// LogSolveStart logs the start of a solve request.
func (t *Telemetry) LogSolveStart(ctx context.Context, p core.Problem) {
	t.logger.InfoContext(ctx, "solve_started",
		"problem_id", p.ID,
		"hint", string(p.Hint),
		"input_len", len(p.Text),
	)
}

// LogSolveEnd records the terminal verdict of a solve and updates counters.
func (t *Telemetry) LogSolveEnd(ctx context.Context, p core.Problem, verdict core.Verdict, err error, duration time.Duration, attempts int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.SolvesTotal.Add(1)
	t.AttemptsTotal.Add(int64(attempts))
	t.totalSolveTime += duration

	switch {
	case err != nil:
		t.SolvesFailed.Add(1)
		t.logger.WarnContext(ctx, "solve_failed",
			"problem_id", p.ID,
			"duration_ms", duration.Milliseconds(),
			"attempts", attempts,
			"error", err.Error(),
		)
	case verdict == core.VerdictSAT:
		t.SolvesSat.Add(1)
	case verdict == core.VerdictUNSAT:
		t.SolvesUnsat.Add(1)
	default:
		t.SolvesUnknown.Add(1)
	}

	if err == nil {
		t.logger.InfoContext(ctx, "solve_finished",
			"problem_id", p.ID,
			"verdict", string(verdict),
			"duration_ms", duration.Milliseconds(),
			"attempts", attempts,
		)
	}

	if n := t.SolvesTotal.Value(); n > 0 {
		t.AvgSolveTimeMS.Set(float64(t.totalSolveTime.Milliseconds()) / float64(n))
	}
}

// LogBatch records one completed batch.
func (t *Telemetry) LogBatch(ctx context.Context, total, succeeded, failed, timedOut int, elapsed time.Duration) {
	t.BatchesTotal.Add(1)
	t.BatchItems.Add(int64(total))
	t.logger.InfoContext(ctx, "batch_finished",
		"total", total,
		"succeeded", succeeded,
		"failed", failed,
		"timed_out", timedOut,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// HealthHandler returns a simple health check.
func (t *Telemetry) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","service":"fusion"}`))
}

// MetricsHandler returns counters in expvar format.
func (t *Telemetry) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	expvar.Handler().ServeHTTP(w, r)
}
