package provider

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"

	"dataplatform/internal/fault"
)

var ErrPagesConsumed = errors.New("page sequence already consumed")

// Page is one page of an upstream listing. An empty Next ends the listing.
type Page[T any] struct {
	Items []T
	Next  string
}

// Pages walks a paginated listing lazily, starting at cursor "". The
// sequence is finite, stops at the first error and cannot be ranged twice.
func Pages[T any](ctx context.Context, fetch func(ctx context.Context, cursor string) (Page[T], error)) iter.Seq2[[]T, error] {
	var used atomic.Bool
	return func(yield func([]T, error) bool) {
		if used.Swap(true) {
			yield(nil, ErrPagesConsumed)
			return
		}
		cursor := ""
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, fault.Wrap(fault.Cancelled, err, "cancelled while paging"))
				return
			}
			p, err := fetch(ctx, cursor)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(p.Items, nil) || p.Next == "" || p.Next == cursor {
				return
			}
			cursor = p.Next
		}
	}
}

// Collect drains seq. A positive limit stops paging once that many items
// are in hand.
func Collect[T any](seq iter.Seq2[[]T, error], limit int) ([]T, error) {
	var out []T
	for items, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
	}
	return out, nil
}
