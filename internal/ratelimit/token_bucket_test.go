package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesCapacity(t *testing.T) {
	now := time.Now()
	tb := NewTokenBucket(60, 2)
	tb.now = func() time.Time { return now }
	tb.lastRefillTime = now

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	// 60 QPM 即每秒一个令牌
	now = now.Add(time.Second)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestWaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tb.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryWithBackoff(t *testing.T) {
	tb := NewTokenBucket(6000, 10).WithRetryPolicy(time.Millisecond, 2)

	calls := 0
	err := tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("read: connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	permanent := errors.New("invalid api key")
	err = tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}
