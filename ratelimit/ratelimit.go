// Package ratelimit implements the Rate Limiter (C12): global and
// per-provider ceilings on requests-per-minute, tokens-per-minute, and
// concurrent in-flight calls, with selectable windowing strategies.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/byokit/byokit/errs"
	"github.com/byokit/byokit/events"
)

// Strategy selects how the requests/tokens-per-minute ceiling is
// enforced. Concurrency limiting is strategy-independent.
type Strategy int

const (
	// SlidingWindow is the default: a rolling 60s window of timestamped
	// hits, trimmed lazily on each check.
	SlidingWindow Strategy = iota
	// FixedWindow resets its counters once 60s have passed since the
	// current window opened.
	FixedWindow
	// TokenBucket uses golang.org/x/time/rate, refilling continuously.
	TokenBucket
)

// Limits are the ceilings enforced for one scope (global or a single
// provider). A zero field means "no ceiling" for that dimension.
type Limits struct {
	RequestsPerMinute int
	TokensPerMinute   int
	MaxConcurrent     int
}

// Config configures a Limiter.
type Config struct {
	Strategy Strategy
	Global   Limits
	// PerProvider overrides Global for the named provider. A provider
	// absent from this map inherits Global only.
	PerProvider map[string]Limits
	// WaitCap bounds how long Acquire will suspend before failing with
	// RATE_LIMITED. Zero selects the default of 30s.
	WaitCap time.Duration
}

func (c Config) limitsFor(provider string) Limits {
	if l, ok := c.PerProvider[provider]; ok {
		return l
	}
	return c.Global
}

// Limiter enforces Config across callers. Acquire is the suspension
// point; callers must call the returned release func exactly once after
// the gated call completes, win or lose.
type Limiter struct {
	cfg    Config
	bus    *events.Bus
	logger *zap.Logger

	global   *scope
	provider map[string]*scope
}

// Option configures a Limiter at construction.
type Option func(*Limiter)

// WithEventBus attaches an event bus for rate:limited emission.
func WithEventBus(bus *events.Bus) Option {
	return func(l *Limiter) { l.bus = bus }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// New builds a Limiter from cfg.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.WaitCap == 0 {
		cfg.WaitCap = 30 * time.Second
	}
	l := &Limiter{cfg: cfg, logger: zap.NewNop(), provider: make(map[string]*scope)}
	l.global = newScope(cfg.Strategy, cfg.Global)
	for provider, limits := range cfg.PerProvider {
		l.provider[provider] = newScope(cfg.Strategy, limits)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) scopeFor(provider string) *scope {
	if s, ok := l.provider[provider]; ok {
		return s
	}
	limits := l.cfg.limitsFor(provider)
	s := newScope(l.cfg.Strategy, limits)
	l.provider[provider] = s
	return s
}

// Acquire blocks until a slot is available for provider under both the
// global and per-provider ceilings, or until the wait cap/ctx expires,
// whichever comes first. tokens is the estimated token cost of the
// pending call, checked against TokensPerMinute. The returned release
// func must be called once the gated call finishes to free its
// concurrency slot.
func (l *Limiter) Acquire(ctx context.Context, provider string, tokens int) (release func(), err error) {
	deadline := time.Now().Add(l.cfg.WaitCap)
	providerScope := l.scopeFor(provider)

	for {
		waitGlobal, okGlobal := l.global.tryAcquire(tokens)
		waitProvider, okProvider := providerScope.tryAcquire(tokens)
		if okGlobal && okProvider {
			return func() {
				l.global.release()
				providerScope.release()
			}, nil
		}
		if okGlobal {
			l.global.release()
		}
		if okProvider {
			providerScope.release()
		}

		wait := waitGlobal
		if waitProvider > wait {
			wait = waitProvider
		}
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.emitLimited(provider, wait)
			return nil, errs.New(errs.RateLimited, provider, "rate limit wait cap exceeded")
		}
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errs.AbortedErr(provider)
		case <-timer.C:
		}
	}
}

func (l *Limiter) emitLimited(provider string, retryAfter time.Duration) {
	l.logger.Warn("rate limit wait cap exceeded", zap.String("provider", provider), zap.Duration("retry_after", retryAfter))
	if l.bus == nil {
		return
	}
	l.bus.Emit(events.Event{
		Kind:     events.RateLimited,
		Provider: provider,
		Data: map[string]any{
			"retry_after_ms": retryAfter.Milliseconds(),
		},
	})
}
