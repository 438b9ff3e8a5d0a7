// Package dispatch provides the bounded worker pool that runs a per-item
// function over a list of work items, gated by an optional shared rate
// limiter, with per-item failure isolation and aggregated stats.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jackzampolin/folio/internal/providers"
)

// DefaultMaxWorkers bounds pool size when the config leaves it unset.
const DefaultMaxWorkers = 8

// Stats aggregates per-item outcomes for one Process run.
type Stats struct {
	Processed int     `json:"processed"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	TotalCost float64 `json:"total_cost"`
}

// Config configures a Pool.
type Config struct {
	// MaxWorkers is the number of concurrent workers.
	MaxWorkers int

	// Limiter, when set, is awaited before every worker invocation. All
	// workers share it, so external calls never exceed its cadence.
	Limiter *providers.RateLimiter

	Logger *slog.Logger
}

// Pool is a bounded worker pool. A Pool is reusable across Process calls.
type Pool struct {
	maxWorkers int
	limiter    *providers.RateLimiter
	logger     *slog.Logger
}

// New creates a worker pool.
func New(cfg Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		maxWorkers: cfg.MaxWorkers,
		limiter:    cfg.Limiter,
		logger:     logger,
	}
}

// WorkerFunc processes one item. A returned error marks the item failed
// without affecting sibling items.
type WorkerFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Callbacks customizes per-item reporting during a Process run.
type Callbacks[R any] struct {
	// OnResult fires synchronously from the worker goroutine as each item
	// succeeds. Used to persist progress incrementally.
	OnResult func(R)

	// OnProgress fires whenever the completed count crosses a
	// ProgressInterval boundary, and once more at the end.
	OnProgress       func(completed, total int)
	ProgressInterval int

	// Cost extracts the cost of a successful result for stats aggregation.
	Cost func(R) float64
}

// Process runs fn over all items with the pool's worker bound. Results are
// returned in completion order, not submission order; callers needing
// submission order must sort by an identifying field. Errors and panics in
// fn are isolated to their item: logged, counted under Stats.Failed, and
// excluded from the returned slice.
func Process[T, R any](ctx context.Context, p *Pool, items []T, fn WorkerFunc[T, R], cb Callbacks[R]) ([]R, Stats) {
	if len(items) == 0 {
		return nil, Stats{}
	}

	workers := p.maxWorkers
	if workers > len(items) {
		workers = len(items)
	}

	work := make(chan T)
	var (
		mu      sync.Mutex
		results []R

		completed atomic.Int64
		succeeded atomic.Int64
		failed    atomic.Int64
		totalCost float64
	)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				result, err := runOne(ctx, p, item, fn)

				done := completed.Add(1)
				if err != nil {
					failed.Add(1)
					p.logger.Warn("work item failed", "error", err)
				} else {
					succeeded.Add(1)
					mu.Lock()
					results = append(results, result)
					if cb.Cost != nil {
						totalCost += cb.Cost(result)
					}
					mu.Unlock()
					if cb.OnResult != nil {
						cb.OnResult(result)
					}
				}

				if cb.OnProgress != nil && cb.ProgressInterval > 0 {
					if done%int64(cb.ProgressInterval) == 0 || done == int64(len(items)) {
						cb.OnProgress(int(done), len(items))
					}
				}
			}
		}()
	}

	// Feed items; stop early if the context is cancelled.
	submitted := 0
feed:
	for _, item := range items {
		select {
		case work <- item:
			submitted++
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	stats := Stats{
		Processed: int(completed.Load()),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		TotalCost: totalCost,
	}

	// Items never submitted because of cancellation count as failed, so
	// an interrupted run is never mistaken for a complete one.
	if unsubmitted := len(items) - submitted; unsubmitted > 0 {
		stats.Failed += unsubmitted
		p.logger.Warn("dispatch cancelled before all items were submitted",
			"unsubmitted", unsubmitted, "total", len(items))
	}

	p.logger.Debug("dispatch complete",
		"processed", stats.Processed,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"total_cost", stats.TotalCost)

	return results, stats
}

// runOne executes fn for one item with rate limiting and panic recovery.
func runOne[T, R any](ctx context.Context, p *Pool, item T, fn WorkerFunc[T, R]) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			var zero R
			return zero, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	return fn(ctx, item)
}
