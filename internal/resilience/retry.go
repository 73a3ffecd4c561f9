package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig controls retry behaviour.
type RetryConfig struct {
	// MaxAttempts is the total number of calls including the first attempt.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration
	// BackoffFactor multiplies the delay per attempt. Defaults to 2.
	BackoffFactor float64
	// MaxDelay caps a single backoff delay. Zero means no cap.
	MaxDelay time.Duration
	// JitterLow/JitterHigh bound a uniform multiplier applied to each delay.
	// Both zero disables jitter.
	JitterLow  float64
	JitterHigh float64
	// Retryable decides whether an error is worth another attempt.
	// Nil retries everything.
	Retryable func(error) bool
	// OnRetry fires after a failed attempt, before the next sleep.
	// attempt is 1-indexed (1 = first attempt just failed).
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Backoff returns the pre-jitter delay for a 1-indexed attempt:
// min(MaxDelay, BaseDelay * BackoffFactor^(attempt-1)).
func (cfg RetryConfig) Backoff(attempt int) time.Duration {
	factor := cfg.BackoffFactor
	if factor <= 0 {
		factor = 2
	}
	d := time.Duration(float64(cfg.BaseDelay) * math.Pow(factor, float64(attempt-1)))
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}

// Retry calls fn up to cfg.MaxAttempts times with exponential backoff.
// Returns nil on first success, or the last error after all attempts.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Backoff(attempt)
		if cfg.JitterHigh > cfg.JitterLow {
			mult := cfg.JitterLow + rand.Float64()*(cfg.JitterHigh-cfg.JitterLow)
			delay = time.Duration(float64(delay) * mult)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, lastErr)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
