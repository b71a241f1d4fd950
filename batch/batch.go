// Package batch runs many independent problems concurrently over a bounded
// worker pool. Concurrency is capped by a weighted-semaphore admission gate,
// every item gets its own budget, and the result slice preserves input order
// no matter how completion interleaves.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/snow-ghost/fusion/core"
)

// Item is one independent problem in a batch.
type Item struct {
	ID   string        `json:"id,omitempty"`
	Text string        `json:"text"`
	Hint core.Category `json:"hint,omitempty"`
}

// ItemOutcome pairs one item's value-or-error with its input position.
type ItemOutcome[T any] struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Value T      `json:"value,omitempty"`
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Failed reports whether the item produced no value.
func (o ItemOutcome[T]) Failed() bool { return o.Err != nil }

// Result is a terminal, immutable snapshot of a completed batch.
type Result[T any] struct {
	Items     []ItemOutcome[T] `json:"items"`
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	TimedOut  int              `json:"timed_out"`
	Elapsed   time.Duration    `json:"elapsed"`
}

// SolveFunc processes one item under the given context.
type SolveFunc[T any] func(ctx context.Context, item Item) (T, error)

// Coordinator bounds in-flight items and, optionally, the admission rate.
type Coordinator[T any] struct {
	maxConcurrency int64
	perItemTimeout time.Duration
	limiter        *rate.Limiter
}

type Option[T any] func(*Coordinator[T])

// WithRateLimit additionally throttles admissions to n items per second.
func WithRateLimit[T any](perSecond float64, burst int) Option[T] {
	return func(c *Coordinator[T]) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func NewCoordinator[T any](maxConcurrency int, perItemTimeout time.Duration, opts ...Option[T]) *Coordinator[T] {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	c := &Coordinator[T]{
		maxConcurrency: int64(maxConcurrency),
		perItemTimeout: perItemTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Process runs all items and blocks until every one has finished or been
// abandoned at its deadline. One item's timeout or failure never affects a
// sibling. An empty batch is an error.
func (c *Coordinator[T]) Process(ctx context.Context, items []Item, run SolveFunc[T]) (*Result[T], error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("batch: no items to process")
	}

	start := time.Now()
	sem := semaphore.NewWeighted(c.maxConcurrency)
	outcomes := make([]ItemOutcome[T], len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = ItemOutcome[T]{Index: i, ID: item.ID, Err: err, Error: err.Error()}
			continue
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				sem.Release(1)
				outcomes[i] = ItemOutcome[T]{Index: i, ID: item.ID, Err: err, Error: err.Error()}
				continue
			}
		}

		wg.Add(1)
		go func(i int, item Item) {
			defer wg.Done()
			defer sem.Release(1)

			itemCtx := ctx
			if c.perItemTimeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(ctx, c.perItemTimeout)
				defer cancel()
			}

			value, err := run(itemCtx, item)
			out := ItemOutcome[T]{Index: i, ID: item.ID, Value: value, Err: err}
			if err != nil {
				out.Error = err.Error()
			}
			outcomes[i] = out
		}(i, item)
	}
	wg.Wait()

	result := &Result[T]{
		Items:   outcomes,
		Total:   len(items),
		Elapsed: time.Since(start),
	}
	for _, o := range outcomes {
		switch {
		case o.Err == nil:
			result.Succeeded++
		case isTimeout(o.Err):
			result.TimedOut++
			result.Failed++
		default:
			result.Failed++
		}
	}
	return result, nil
}

func isTimeout(err error) bool {
	var terr *core.TimeoutError
	return errors.As(err, &terr) || errors.Is(err, context.DeadlineExceeded)
}
