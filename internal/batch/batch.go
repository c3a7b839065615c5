// Package batch runs independent work items concurrently with a bounded
// number of workers while preserving input order in the results.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is used when a non-positive limit is supplied.
const DefaultConcurrency = 4

// Map applies fn to every item using at most limit goroutines. Results keep
// the order of items. The first error cancels the context passed to the
// remaining calls and is returned.
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, i int, item T) (R, error)) ([]R, error) {
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, i, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Each is Map for functions that only report errors.
func Each[T any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, i int, item T) error) error {
	_, err := Map(ctx, items, limit, func(ctx context.Context, i int, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, i, item)
	})
	return err
}
