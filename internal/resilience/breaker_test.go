package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orelytics/docpipe/internal/common"
)

func newTestBreaker(timeout time.Duration) *Breaker {
	return NewBreaker("test", BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          timeout,
	}, nil)
}

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	b := newTestBreaker(time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := b.Do(context.Background(), func(context.Context) error { return boom })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, StateOpen, b.State())

	// Next call must fail fast without invoking the wrapped function.
	calls := 0
	err := b.Do(context.Background(), func(context.Context) error { calls++; return nil })
	var coe *common.CircuitOpenError
	require.ErrorAs(t, err, &coe)
	assert.Equal(t, "test", coe.Name)
	assert.False(t, coe.ResetAt.IsZero())
	assert.Equal(t, 0, calls)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(time.Minute)
	boom := errors.New("boom")

	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	require.NoError(t, b.Do(context.Background(), func(context.Context) error { return nil }))

	// Two more failures should not open (counter was reset).
	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenAfterTimeoutThenCloses(t *testing.T) {
	b := newTestBreaker(20 * time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = b.Do(context.Background(), func(context.Context) error { return boom })
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)

	// Lazy transition: the next observed call goes through as a probe.
	require.NoError(t, b.Do(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Do(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(20 * time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = b.Do(context.Background(), func(context.Context) error { return boom })
	}
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	assert.Equal(t, StateOpen, b.State())

	// The failure timer restarted, so the circuit is still open right away.
	var coe *common.CircuitOpenError
	err := b.Do(context.Background(), func(context.Context) error { return nil })
	require.ErrorAs(t, err, &coe)
}
