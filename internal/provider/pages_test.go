package provider_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"dataplatform/internal/fault"
	"dataplatform/internal/provider"
)

func numbered(total, size int, calls *int) func(context.Context, string) (provider.Page[int], error) {
	return func(_ context.Context, cursor string) (provider.Page[int], error) {
		*calls++
		start, _ := strconv.Atoi(cursor)
		var p provider.Page[int]
		for i := start; i < min(start+size, total); i++ {
			p.Items = append(p.Items, i)
		}
		if start+size < total {
			p.Next = strconv.Itoa(start + size)
		}
		return p, nil
	}
}

func TestPages_WalksUntilNoCursor(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := provider.Collect(provider.Pages(t.Context(), numbered(7, 3, &calls)), 0)

	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, got)
	require.Equal(t, 3, calls)
}

func TestPages_LimitStopsEarly(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := provider.Collect(provider.Pages(t.Context(), numbered(100, 3, &calls)), 4)

	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, got)
	require.Equal(t, 2, calls)
}

func TestPages_NotRestartable(t *testing.T) {
	t.Parallel()

	calls := 0
	seq := provider.Pages(t.Context(), numbered(2, 5, &calls))
	_, err := provider.Collect(seq, 0)
	require.NoError(t, err)

	_, err = provider.Collect(seq, 0)
	require.ErrorIs(t, err, provider.ErrPagesConsumed)
	require.Equal(t, 1, calls)
}

func TestPages_StopsOnErrorAndCancel(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	seq := provider.Pages(t.Context(), func(context.Context, string) (provider.Page[int], error) {
		return provider.Page[int]{}, boom
	})
	_, err := provider.Collect(seq, 0)
	require.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	calls := 0
	_, err = provider.Collect(provider.Pages(ctx, numbered(5, 1, &calls)), 0)
	require.Equal(t, fault.Cancelled, fault.KindOf(err))
	require.Zero(t, calls)
}
