// Package retry implements the Retry Engine (C5): a bounded retry loop with
// exponential backoff, jitter, and Retry-After awareness, abortable via
// context.
package retry

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/byokit/byokit/errs"
)

// Options configures a single Do call. Zero values fall back to the
// defaults below, matching §4.5's withRetry signature.
type Options struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	ShouldRetry func(error) bool
	OnRetry     func(err error, attempt int, delay time.Duration)
}

const (
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 60 * time.Second
	defaultJitter    = 0.2
)

func (o Options) withDefaults() Options {
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = defaultMaxDelay
	}
	if o.Jitter == 0 {
		o.Jitter = defaultJitter
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = DefaultShouldRetry
	}
	return o
}

// networkKeywords mirrors §4.5's default predicate for untyped errors: a
// plain error whose message mentions one of these is treated as
// transient.
var networkKeywords = []string{
	"429", "500", "502", "503", "504",
	"network", "timeout", "econnreset", "enotfound", "etimedout", "fetch",
}

// DefaultShouldRetry is used when Options.ShouldRetry is nil. A typed
// *errs.Error defers to its own CanRetry; any other error is retried only
// if its message looks transient.
func DefaultShouldRetry(err error) bool {
	if e, ok := errs.As(err); ok {
		return e.CanRetry()
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range networkKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// Do runs fn, retrying on failure per opts, up to opts.MaxRetries
// additional attempts after the first. It returns nil on the first
// success, or the last error once retries are exhausted, the predicate
// rejects an error, or ctx is canceled.
func Do(ctx context.Context, fn func(ctx context.Context) error, opts Options) error {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return errs.AbortedErr("retry loop canceled before attempt")
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == opts.MaxRetries || !opts.ShouldRetry(lastErr) {
			return lastErr
		}

		delay := computeDelay(lastErr, attempt, opts)
		if opts.OnRetry != nil {
			opts.OnRetry(lastErr, attempt+1, delay)
		}
		if err := abortableSleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// computeDelay honors a provider-supplied Retry-After hint when present,
// otherwise falls back to exponential backoff shifted by a random offset of
// up to ±Jitter of the backed-off delay, per §4.5. Both paths are clamped
// to MaxDelay.
func computeDelay(err error, attempt int, opts Options) time.Duration {
	if e, ok := errs.As(err); ok && e.RetryAfter > 0 {
		jittered := e.RetryAfter + time.Duration(rand.Float64()*opts.Jitter*float64(e.RetryAfter))
		if jittered > opts.MaxDelay {
			jittered = opts.MaxDelay
		}
		return jittered
	}

	capped := opts.BaseDelay * time.Duration(uint64(1)<<uint(attempt))
	if capped > opts.MaxDelay || capped <= 0 {
		capped = opts.MaxDelay
	}
	span := opts.Jitter * float64(capped)
	delta := (rand.Float64()*2 - 1) * span
	d := time.Duration(float64(capped) + delta)
	if d < 0 {
		d = 0
	}
	if d > opts.MaxDelay {
		d = opts.MaxDelay
	}
	return d
}

// abortableSleep waits out delay, or returns an ABORTED error the moment
// ctx is canceled, whichever happens first.
func abortableSleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errs.AbortedErr("retry sleep interrupted")
	}
}
