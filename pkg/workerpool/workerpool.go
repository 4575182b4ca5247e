// Package workerpool runs a bounded set of item-processing goroutines with
// fail-fast cancellation: the first worker error cancels every other
// in-flight and queued item, and Run returns that first error. It backs
// both the XML extractor (one worker per part file) and the parallel
// loader (one worker per staging partition), the two places
// spec §5 bounds concurrency by MAX_THREADS.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Run processes each of the n items with fn, running at most `concurrency`
// of them at once. fn is called with the item's index. The first non-nil
// error returned by any fn cancels the context passed to the others and is
// returned from Run once every already-started call has finished.
//
// concurrency <= 0 is treated as 1, guaranteeing at least serial progress.
func Run(ctx context.Context, n, concurrency int, fn func(ctx context.Context, index int) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(concurrency))

	for i := 0; i < n; i++ {
		i := i
		if err := sem.Acquire(gctx, 1); err != nil {
			// Context already cancelled by an earlier failure; stop
			// admitting new work and let Wait surface the real cause.
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return fn(gctx, i)
		})
	}

	return g.Wait()
}

// RunValues is the generic counterpart to Run for workers that produce a
// per-item result (e.g. one loader Result per staging partition). Results
// are indexed to match input order regardless of completion order.
func RunValues[T any](ctx context.Context, n, concurrency int, fn func(ctx context.Context, index int) (T, error)) ([]T, error) {
	results := make([]T, n)
	err := Run(ctx, n, concurrency, func(ctx context.Context, index int) error {
		v, err := fn(ctx, index)
		if err != nil {
			return err
		}
		results[index] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
