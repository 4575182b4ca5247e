package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ProcessesAllItems(t *testing.T) {
	var processed int64
	err := Run(context.Background(), 20, 4, func(ctx context.Context, index int) error {
		atomic.AddInt64(&processed, 1)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 20, processed)
}

func TestRun_NeverExceedsConcurrency(t *testing.T) {
	var inflight, maxInflight int64
	err := Run(context.Background(), 50, 5, func(ctx context.Context, index int) error {
		n := atomic.AddInt64(&inflight, 1)
		for {
			cur := atomic.LoadInt64(&maxInflight)
			if n <= cur || atomic.CompareAndSwapInt64(&maxInflight, cur, n) {
				break
			}
		}
		atomic.AddInt64(&inflight, -1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, maxInflight, int64(5))
}

func TestRun_FailFastCancelsRemaining(t *testing.T) {
	sentinel := errors.New("boom")
	var started int64

	err := Run(context.Background(), 100, 2, func(ctx context.Context, index int) error {
		atomic.AddInt64(&started, 1)
		if index == 3 {
			return sentinel
		}
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel) || errors.Is(err, context.Canceled))
	assert.Less(t, started, int64(100))
}

func TestRunValues_PreservesIndexOrder(t *testing.T) {
	results, err := RunValues(context.Background(), 10, 3, func(ctx context.Context, index int) (int, error) {
		return index * index, nil
	})
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, v := range results {
		assert.Equal(t, i*i, v)
	}
}

func TestRunValues_PropagatesError(t *testing.T) {
	sentinel := errors.New("bad partition")
	_, err := RunValues(context.Background(), 5, 2, func(ctx context.Context, index int) (int, error) {
		if index == 2 {
			return 0, sentinel
		}
		return index, nil
	})
	require.Error(t, err)
}

func TestRun_ZeroOrNegativeConcurrencyFallsBackToOne(t *testing.T) {
	var processed int64
	err := Run(context.Background(), 5, 0, func(ctx context.Context, index int) error {
		atomic.AddInt64(&processed, 1)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, processed)
}
