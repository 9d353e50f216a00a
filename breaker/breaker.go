// Package breaker implements the Circuit Breaker (C6): a per-provider
// closed/open/half-open state machine that stops sending calls to a
// provider that is failing repeatedly, and lets a small number of trial
// calls through once a cooldown window has elapsed.
package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/byokit/byokit/errs"
)

// State is one of the three circuit states from §4.6.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the thresholds from §4.6; zero values fall back to the
// documented defaults.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenTrials   int
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenTrials <= 0 {
		c.HalfOpenTrials = 3
	}
	return c
}

// Breaker tracks one provider's circuit state.
type Breaker struct {
	mu     sync.Mutex
	cfg    Config
	logger *zap.Logger

	provider        string
	state           State
	failureCount    int
	halfOpenSuccess int
	openedAt        time.Time
}

// New constructs a breaker for provider, starting Closed.
func New(provider string, cfg Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{provider: provider, cfg: cfg.withDefaults(), logger: logger, state: Closed}
}

// State returns the current state, resolving a stale Open into HalfOpen
// if the reset timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpen()
	return b.state
}

// Allow reports whether a call may proceed. When it returns an error the
// call must not be attempted; the error is a retryable REQUEST_FAILED
// carrying the remaining cooldown as RetryAfter.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeTransitionToHalfOpen()

	switch b.state {
	case Closed:
		return nil
	case HalfOpen:
		if b.halfOpenSuccess+1 > b.cfg.HalfOpenTrials {
			// Trials exhausted without reaching the required successes;
			// treat the circuit as still recovering.
			return b.openError()
		}
		return nil
	default: // Open
		return b.openError()
	}
}

func (b *Breaker) openError() error {
	remaining := b.cfg.ResetTimeout - time.Since(b.openedAt)
	if remaining < 0 {
		remaining = 0
	}
	e := errs.New(errs.RequestFailed, b.provider, "circuit breaker open")
	e.RetryAfter = remaining
	return e
}

func (b *Breaker) maybeTransitionToHalfOpen() {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.ResetTimeout {
		b.logger.Info("circuit breaker entering half-open",
			zap.String("provider", b.provider))
		b.state = HalfOpen
		b.halfOpenSuccess = 0
	}
}

// RecordSuccess reports a successful call, resetting the failure counter
// in Closed and counting toward recovery in HalfOpen.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.HalfOpenTrials {
			b.logger.Info("circuit breaker closing after successful trials",
				zap.String("provider", b.provider))
			b.state = Closed
			b.failureCount = 0
			b.halfOpenSuccess = 0
		}
	}
}

// RecordFailure reports a failed call. In Closed it increments the
// failure counter, opening the circuit once failureThreshold is reached.
// Any failure in HalfOpen reopens the circuit and restarts its timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.trip()
		}
	case HalfOpen:
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.logger.Warn("circuit breaker opening",
		zap.String("provider", b.provider),
		zap.Int("failure_count", b.failureCount))
	b.state = Open
	b.openedAt = time.Now()
	b.halfOpenSuccess = 0
}

// Reset forces the breaker back to Closed, discarding any accumulated
// failure or trial count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failureCount = 0
	b.halfOpenSuccess = 0
}
