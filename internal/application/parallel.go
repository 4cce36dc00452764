package application

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ForEachIndex calls fn for every index in [0, n) from at most workers
// goroutines that pull the next index from a shared counter. The first
// non-nil error cancels the context handed to the remaining calls and is
// returned. Callers that want per-item failures record them and return nil.
func ForEachIndex(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	g, gctx := errgroup.WithContext(ctx)
	var next atomic.Int64
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(next.Add(1) - 1)
				if i >= n {
					return nil
				}
				if err := fn(gctx, i); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

// MapConcurrent applies fn to every item with bounded concurrency and keeps
// results in input order.
func MapConcurrent[T, R any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	err := ForEachIndex(ctx, len(items), workers, func(ctx context.Context, i int) error {
		r, err := fn(ctx, items[i])
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
