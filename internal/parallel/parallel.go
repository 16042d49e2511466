// Package parallel implements the §5 "doInParallel" bounded-parallel
// dispatch utility: independent per-sub work (status reads, commit
// production, cherry-pick application) runs concurrently over an
// object-store interface safe for concurrent calls, bounded so a meta-repo
// with many sub-repos doesn't open unbounded concurrent handles.
//
// Grounded on the teacher's hand-rolled semaphore+WaitGroup+Mutex pattern in
// cmd/status.go's compareStatus, generalized to golang.org/x/sync/errgroup
// the way the wider retrieval pack uses it for bounded fan-out.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit bounds concurrent tasks when callers don't have a more
// specific figure (e.g. number of open sub-repos).
const DefaultLimit = 8

// DoInParallel runs fn(item) for every item in items, at most limit at a
// time, and collects results in input order. If limit <= 0, DefaultLimit is
// used. The first error returned by any fn cancels ctx for the others and is
// returned; results for items whose fn never ran are the zero value.
func DoInParallel[T any, R any](ctx context.Context, limit int, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// DoInParallelVoid is DoInParallel without a result value, for tasks run
// purely for their side effects (e.g. writing synthetic refs).
func DoInParallelVoid[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T) error) error {
	_, err := DoInParallel(ctx, limit, items, func(c context.Context, item T) (struct{}, error) {
		return struct{}{}, fn(c, item)
	})
	return err
}
