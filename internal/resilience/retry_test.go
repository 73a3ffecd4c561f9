package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_FailTwiceThenSucceed(t *testing.T) {
	calls := 0
	var slept time.Duration
	cfg := RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		BackoffFactor: 2,
		OnRetry: func(_ int, delay time.Duration, _ error) {
			slept += delay
		},
	}
	err := Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "fn should be called exactly MaxAttempts times")
	// Pre-jitter schedule: base + base*2.
	assert.GreaterOrEqual(t, slept, 3*time.Millisecond)
}

func TestRetry_ReturnsLastErrorAfterExhaustion(t *testing.T) {
	sentinel := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	cfg := RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}
	err := Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetry_BackoffCappedAtMaxDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, BackoffFactor: 10, MaxDelay: 3 * time.Second}
	assert.Equal(t, time.Second, cfg.Backoff(1))
	assert.Equal(t, 3*time.Second, cfg.Backoff(2))
	assert.Equal(t, 3*time.Second, cfg.Backoff(5))
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Retry(ctx, RetryConfig{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}, func(context.Context) error {
		return errors.New("always fails")
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetry_JitterStaysInRange(t *testing.T) {
	var delays []time.Duration
	cfg := RetryConfig{
		MaxAttempts:   4,
		BaseDelay:     10 * time.Millisecond,
		BackoffFactor: 1,
		JitterLow:     0.5,
		JitterHigh:    1.5,
		OnRetry: func(_ int, delay time.Duration, _ error) {
			delays = append(delays, delay)
		},
	}
	_ = Retry(context.Background(), cfg, func(context.Context) error { return errors.New("fail") })
	require.Len(t, delays, 3)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, 5*time.Millisecond)
		assert.LessOrEqual(t, d, 15*time.Millisecond)
	}
}
