package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/orelytics/docpipe/internal/common"
)

// BreakerState is the current position of the state machine.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig tunes one circuit breaker instance.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the consecutive-success count in HALF_OPEN that closes it.
	SuccessThreshold int
	// Timeout is how long the circuit stays OPEN before a probe call is allowed.
	Timeout time.Duration
}

// Breaker is a mutex-guarded circuit breaker shared by all callers that
// target the same logical dependency. The OPEN → HALF_OPEN transition is
// lazy: it happens on the next observed call after Timeout has elapsed,
// not via a background timer.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger *slog.Logger

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

func NewBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
	}
}

func (b *Breaker) Name() string { return b.name }

// State reports the current state, applying the lazy OPEN → HALF_OPEN
// transition if the open window has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

// Allow reports whether a call may proceed right now. When the circuit is
// open it returns a CircuitOpenError carrying the estimated reset time.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	if b.state == StateOpen {
		return &common.CircuitOpenError{
			Name:    b.name,
			ResetAt: b.lastFailure.Add(b.cfg.Timeout),
		}
	}
	return nil
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.logger.Info("breaker.closed", "name", b.name)
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = time.Now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.logger.Warn("breaker.opened", "name", b.name, "failures", b.failures)
			b.state = StateOpen
		}
	case StateHalfOpen:
		// Any failure during the probe window reopens immediately.
		b.logger.Warn("breaker.reopened", "name", b.name)
		b.state = StateOpen
		b.successes = 0
	}
}

// Do runs fn behind the breaker: fail fast when open, record the outcome
// otherwise.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil {
		b.Failure()
		return err
	}
	b.Success()
	return nil
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == StateOpen && time.Since(b.lastFailure) >= b.cfg.Timeout {
		b.logger.Info("breaker.half_open", "name", b.name)
		b.state = StateHalfOpen
		b.successes = 0
	}
}
