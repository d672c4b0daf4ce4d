package gapi

import (
	"context"

	"github.com/tagstack/billingcore/pkg/async"
)

// Outcome is the result of one item within a batch call.
type Outcome[R any] struct {
	Result R
	Err    error
}

// BatchDo fans out one call per item and joins them all, returning outcomes
// in input order. Items fail independently: one item's error never cancels
// its siblings. The aggregate decision is left to the caller, which sees
// every outcome only after all items have resolved.
func BatchDo[T, R any](ctx context.Context, items []T, call func(context.Context, T) (R, error)) []Outcome[R] {
	futures := make([]*async.Future[R], len(items))
	for i, item := range items {
		futures[i] = async.Async(ctx, item, call)
	}

	outcomes := make([]Outcome[R], len(items))
	for i, f := range futures {
		res, err := f.Await()
		outcomes[i] = Outcome[R]{Result: res, Err: err}
	}
	return outcomes
}
