package common

import (
	"context"

	"github.com/buildbuildio/fusion/gqlerrors"
	"golang.org/x/sync/errgroup"
)

// ParallelMap calls fn for every item on its own goroutine, at most limit at
// a time when limit is positive. Results keep the order of items; the result
// of a failed item is left zero and its error is collected.
func ParallelMap[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, error)) ([]R, gqlerrors.ErrorList) {
	res := make([]R, len(items))
	failures := make([]error, len(items))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(ctx, item)
			if err != nil {
				failures[i] = err
				return nil
			}
			res[i] = r
			return nil
		})
	}
	_ = g.Wait()

	var errs gqlerrors.ErrorList
	for _, err := range failures {
		if err != nil {
			errs = gqlerrors.ExtendErrorList(errs, err)
		}
	}
	return res, errs
}
