// Package sandbox runs a single procedure attempt under an externally
// enforced wall-clock ceiling. Timeouts use a context deadline plus a
// forced-abandon select rather than signals, so a procedure that ignores
// cancellation still cannot block the caller.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/snow-ghost/fusion/core"
)

// Limits caps the budget any single attempt may request. Memory and CPU
// ceilings are advisory in this layer; hard enforcement happens where the
// runtime supports it (the WASM procedure runtime caps memory pages).
type Limits struct {
	MaxTimeout   time.Duration
	MaxMemMB     int
	MaxCPUMillis int
}

func DefaultLimits() Limits {
	return Limits{
		MaxTimeout:   30 * time.Second,
		MaxMemMB:     512,
		MaxCPUMillis: 30000,
	}
}

// Executor implements core.Executor.
type Executor struct {
	limits Limits
	logger *slog.Logger
}

func NewExecutor(limits Limits, logger *slog.Logger) *Executor {
	if limits.MaxTimeout <= 0 {
		limits.MaxTimeout = DefaultLimits().MaxTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{limits: limits, logger: logger}
}

type attemptReply struct {
	result core.SolverResult
	err    error
}

// Run invokes proc.Decide in its own goroutine and waits for either a reply
// or the deadline. On deadline the attempt is abandoned: the goroutine keeps
// the buffered channel so it can exit whenever the procedure eventually
// notices cancellation, and the caller moves on immediately. Panics inside
// the procedure become SolverError outcomes.
func (e *Executor) Run(ctx context.Context, proc core.Procedure, p core.Problem, b core.Budget) core.ExecutionOutcome {
	b = e.clamp(b)

	execCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan attemptReply, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- attemptReply{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		res, err := proc.Decide(execCtx, p, b)
		done <- attemptReply{result: res, err: err}
	}()

	select {
	case <-execCtx.Done():
		elapsed := time.Since(start)
		var failure error
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			failure = &core.TimeoutError{Budget: b.Timeout}
		} else {
			failure = execCtx.Err()
		}
		e.logger.WarnContext(ctx, "attempt abandoned",
			"procedure", proc.Name(),
			"elapsed_ms", elapsed.Milliseconds(),
			"budget_ms", b.Timeout.Milliseconds(),
		)
		return core.ExecutionOutcome{
			Procedure: proc.Name(),
			Err:       failure,
			Error:     failure.Error(),
			Elapsed:   elapsed,
		}

	case reply := <-done:
		elapsed := time.Since(start)
		if elapsed > b.Timeout {
			elapsed = b.Timeout
		}
		if reply.err != nil {
			serr := &core.SolverError{Procedure: proc.Name(), Err: reply.err}
			return core.ExecutionOutcome{
				Procedure: proc.Name(),
				Err:       serr,
				Error:     serr.Error(),
				Elapsed:   elapsed,
			}
		}
		result := reply.result
		result.Elapsed = elapsed
		if result.SolverName == "" {
			result.SolverName = proc.Name()
		}
		return core.ExecutionOutcome{
			Procedure: proc.Name(),
			Result:    &result,
			Elapsed:   elapsed,
		}
	}
}

// clamp resolves the effective budget: explicit timeout wins, then the CPU
// allowance interpreted as wall time, then the executor's ceiling. No
// requested value may exceed the configured limits.
func (e *Executor) clamp(b core.Budget) core.Budget {
	switch {
	case b.Timeout > 0:
	case b.CPUMillis > 0:
		b.Timeout = time.Duration(b.CPUMillis) * time.Millisecond
	default:
		b.Timeout = e.limits.MaxTimeout
	}
	if b.Timeout > e.limits.MaxTimeout {
		b.Timeout = e.limits.MaxTimeout
	}
	if e.limits.MaxMemMB > 0 && (b.MemMB <= 0 || b.MemMB > e.limits.MaxMemMB) {
		b.MemMB = e.limits.MaxMemMB
	}
	if e.limits.MaxCPUMillis > 0 && (b.CPUMillis <= 0 || b.CPUMillis > e.limits.MaxCPUMillis) {
		b.CPUMillis = e.limits.MaxCPUMillis
	}
	return b
}
