package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/orelytics/docpipe/internal/common"
)

// TokenBucket is a mutex-guarded token-bucket rate limiter. Tokens refill
// continuously at Rate per second, computed lazily from elapsed wall time on
// each access and capped at Burst.
type TokenBucket struct {
	rate  float64
	burst float64

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time

	// pollInterval is how long a blocking Acquire sleeps between checks.
	pollInterval time.Duration
	now          func() time.Time
}

func NewTokenBucket(rate float64, burst int) *TokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:         rate,
		burst:        float64(burst),
		tokens:       float64(burst),
		lastRefill:   time.Now(),
		pollInterval: 50 * time.Millisecond,
		now:          time.Now,
	}
}

// TryAcquire consumes a token if one is available, otherwise returns a
// RateLimitError carrying a suggested retry-after.
func (tb *TokenBucket) TryAcquire() error {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	if tb.tokens >= 1 {
		tb.tokens--
		return nil
	}
	deficit := 1 - tb.tokens
	retryAfter := time.Duration(deficit / tb.rate * float64(time.Second))
	return &common.RateLimitError{RetryAfter: retryAfter}
}

// Acquire blocks in small increments until a token frees, the timeout
// elapses, or ctx is cancelled. A zero timeout means wait indefinitely.
func (tb *TokenBucket) Acquire(ctx context.Context, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = tb.now().Add(timeout)
	}
	for {
		err := tb.TryAcquire()
		if err == nil {
			return nil
		}
		if !deadline.IsZero() && !tb.now().Before(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tb.pollInterval):
		}
	}
}

// Available reports the current token count after a refill pass.
func (tb *TokenBucket) Available() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	return tb.tokens
}

func (tb *TokenBucket) refillLocked() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.burst {
		tb.tokens = tb.burst
	}
	tb.lastRefill = now
}
