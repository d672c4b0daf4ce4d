package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagstack/billingcore/pkg/async"
)

func TestAsync(t *testing.T) {
	t.Parallel()

	t.Run("resolves with result", func(t *testing.T) {
		t.Parallel()

		f := async.Async(context.Background(), 21, func(_ context.Context, n int) (int, error) {
			return n * 2, nil
		})

		got, err := f.Await()
		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.True(t, f.IsComplete())
	})

	t.Run("propagates errors", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("boom")
		f := async.Async(context.Background(), "x", func(context.Context, string) (string, error) {
			return "", wantErr
		})

		_, err := f.Await()
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("canceled context skips the work", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		f := async.Async(ctx, 0, func(context.Context, int) (int, error) {
			t.Error("fn must not run after cancellation")
			return 0, nil
		})

		_, err := f.Await()
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestAwaitWithTimeout(t *testing.T) {
	t.Parallel()

	t.Run("returns before deadline", func(t *testing.T) {
		t.Parallel()

		f := async.Async(context.Background(), "ok", func(_ context.Context, s string) (string, error) {
			return s, nil
		})

		got, err := f.AwaitWithTimeout(time.Second)
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
	})

	t.Run("times out on a slow future", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		defer close(release)

		f := async.Async(context.Background(), 0, func(context.Context, int) (int, error) {
			<-release
			return 1, nil
		})

		_, err := f.AwaitWithTimeout(10 * time.Millisecond)
		assert.ErrorIs(t, err, async.ErrTimeout)
	})
}

func TestWaitAll(t *testing.T) {
	t.Parallel()

	t.Run("joins results in order", func(t *testing.T) {
		t.Parallel()

		double := func(_ context.Context, n int) (int, error) { return n * 2, nil }
		results, err := async.WaitAll(
			async.Async(context.Background(), 1, double),
			async.Async(context.Background(), 2, double),
			async.Async(context.Background(), 3, double),
		)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 4, 6}, results)
	})

	t.Run("reports first error but keeps all results", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("second failed")
		results, err := async.WaitAll(
			async.Async(context.Background(), 1, func(_ context.Context, n int) (int, error) { return n, nil }),
			async.Async(context.Background(), 2, func(context.Context, int) (int, error) { return 0, wantErr }),
			async.Async(context.Background(), 3, func(_ context.Context, n int) (int, error) { return n, nil }),
		)
		assert.ErrorIs(t, err, wantErr)
		assert.Equal(t, []int{1, 0, 3}, results)
	})
}
