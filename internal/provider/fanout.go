package provider

import (
	"context"

	"golang.org/x/sync/errgroup"

	"dataplatform/internal/fault"
)

// FanOut runs fn for every item with at most limit in flight. Results and
// per-item errors come back in input order regardless of completion order,
// so one failing symbol does not sink the others. If ctx ends, everything
// produced so far is discarded and a Cancelled fault is returned.
func FanOut[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, error)) ([]R, []error, error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, it := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = fn(ctx, it)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, fault.Wrap(fault.Cancelled, err, "cancelled during fan-out")
	}
	return results, errs, nil
}
