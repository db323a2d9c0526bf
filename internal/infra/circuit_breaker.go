package infra

import (
	"errors"
	"sync"
	"time"
)

// Circuit breaker guarding the fiscal gateway. Closed → Open on consecutive
// failures, Open → HalfOpen after a timeout, HalfOpen → Closed after enough
// probe successes. Keeps a downed sidecar from being hammered by the worker
// pool and the sweep cron.

// BreakerState is the current breaker position.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned when Do is called while the breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig holds tunable parameters.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures to trip open
	SuccessThreshold int           // probe successes in half-open to close
	OpenTimeout      time.Duration // how long to stay open before probing
}

// DefaultBreakerConfig returns sensible defaults for the fiscal gateway.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, OpenTimeout: 60 * time.Second}
}

// Breaker implements the pattern with thread-safe transitions.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
	cfg         BreakerConfig
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	return &Breaker{state: BreakerClosed, cfg: cfg}
}

// State returns the current position, auto-transitioning open → half-open
// once the open timeout has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.lastFailure) >= b.cfg.OpenTimeout {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
	return b.state
}

// Do runs fn through the breaker, fast-failing with ErrBreakerOpen.
func (b *Breaker) Do(fn func() error) error {
	if b.State() == BreakerOpen {
		return ErrBreakerOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		switch b.state {
		case BreakerClosed:
			if b.failures >= b.cfg.FailureThreshold {
				b.state = BreakerOpen
				b.successes = 0
			}
		case BreakerHalfOpen:
			b.state = BreakerOpen
			b.failures = 0
		}
		return err
	}

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = BreakerClosed
			b.failures = 0
			b.successes = 0
		}
	}
	return nil
}
