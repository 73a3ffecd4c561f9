package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orelytics/docpipe/internal/common"
)

func TestTokenBucket_BurstThenLimited(t *testing.T) {
	tb := NewTokenBucket(10, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, tb.TryAcquire(), "token %d should be available", i)
	}

	err := tb.TryAcquire()
	require.Error(t, err)
	var rle *common.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Greater(t, rle.RetryAfter, time.Duration(0))
}

func TestTokenBucket_LazyRefill(t *testing.T) {
	tb := NewTokenBucket(100, 1)
	require.NoError(t, tb.TryAcquire())
	require.Error(t, tb.TryAcquire())

	// 100 tokens/s → one token well within 50ms.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, tb.TryAcquire())
}

func TestTokenBucket_RefillCappedAtBurst(t *testing.T) {
	tb := NewTokenBucket(1000, 2)
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, tb.Available(), 2.0)
}

func TestTokenBucket_BlockingAcquire(t *testing.T) {
	tb := NewTokenBucket(50, 1)
	tb.pollInterval = 5 * time.Millisecond
	require.NoError(t, tb.TryAcquire())

	start := time.Now()
	require.NoError(t, tb.Acquire(context.Background(), time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTokenBucket_BlockingAcquireTimeout(t *testing.T) {
	tb := NewTokenBucket(0.001, 1)
	tb.pollInterval = 5 * time.Millisecond
	require.NoError(t, tb.TryAcquire())

	err := tb.Acquire(context.Background(), 30*time.Millisecond)
	require.Error(t, err)
	var rle *common.RateLimitError
	assert.ErrorAs(t, err, &rle)
}

func TestTokenBucket_AcquireHonoursContext(t *testing.T) {
	tb := NewTokenBucket(0.001, 1)
	tb.pollInterval = 5 * time.Millisecond
	require.NoError(t, tb.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tb.Acquire(ctx, 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
