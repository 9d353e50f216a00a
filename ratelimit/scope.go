package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// scope tracks the concurrency and requests/tokens windowing state for
// one limiter scope (global, or a single provider).
type scope struct {
	mu            sync.Mutex
	limits        Limits
	inFlight      int
	requestWindow windower
	tokenWindow   windower
}

func newScope(strategy Strategy, limits Limits) *scope {
	return &scope{
		limits:        limits,
		requestWindow: newWindower(strategy, limits.RequestsPerMinute),
		tokenWindow:   newWindower(strategy, limits.TokensPerMinute),
	}
}

// tryAcquire attempts to take one concurrency slot plus one request (and
// tokens worth of token-budget) from the window. On success it returns
// (0, true) and the caller owns a slot until release() is called. On
// failure it returns the suggested wait before retrying and false; no
// slot is held.
func (s *scope) tryAcquire(tokens int) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limits.MaxConcurrent > 0 && s.inFlight >= s.limits.MaxConcurrent {
		return 250 * time.Millisecond, false
	}
	if wait, ok := s.requestWindow.allow(1); !ok {
		return wait, false
	}
	if wait, ok := s.tokenWindow.allow(tokens); !ok {
		return wait, false
	}
	s.inFlight++
	return 0, true
}

func (s *scope) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight > 0 {
		s.inFlight--
	}
}

// windower enforces a single per-minute ceiling under one strategy. A
// ceiling of zero means unbounded: allow always succeeds.
type windower interface {
	allow(n int) (time.Duration, bool)
}

func newWindower(strategy Strategy, perMinute int) windower {
	if perMinute <= 0 {
		return unboundedWindow{}
	}
	switch strategy {
	case FixedWindow:
		return &fixedWindow{limit: perMinute}
	case TokenBucket:
		// x/time/rate's Limiter is in events-per-second; spread the
		// per-minute ceiling evenly and allow a full minute's burst so
		// a quiet limiter doesn't stall the first call.
		return &tokenBucketWindow{limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)}
	default:
		return &slidingWindow{limit: perMinute}
	}
}

type unboundedWindow struct{}

func (unboundedWindow) allow(int) (time.Duration, bool) { return 0, true }

// fixedWindow resets its counter every time the current 60s bucket
// rolls over.
type fixedWindow struct {
	mu          sync.Mutex
	limit       int
	windowStart time.Time
	count       int
}

func (w *fixedWindow) allow(n int) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if w.windowStart.IsZero() || now.Sub(w.windowStart) >= time.Minute {
		w.windowStart = now
		w.count = 0
	}
	if w.count+n > w.limit {
		return w.windowStart.Add(time.Minute).Sub(now), false
	}
	w.count += n
	return 0, true
}

// slidingWindow keeps timestamped hit weights from the trailing 60s and
// trims expired ones lazily on each check.
type slidingWindow struct {
	mu    sync.Mutex
	limit int
	hits  []weightedHit
}

type weightedHit struct {
	at     time.Time
	weight int
}

func (w *slidingWindow) allow(n int) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-time.Minute)

	kept := w.hits[:0]
	total := 0
	for _, h := range w.hits {
		if h.at.After(cutoff) {
			kept = append(kept, h)
			total += h.weight
		}
	}
	w.hits = kept

	if total+n > w.limit {
		var oldest time.Time
		if len(w.hits) > 0 {
			oldest = w.hits[0].at
		} else {
			oldest = now
		}
		return oldest.Add(time.Minute).Sub(now), false
	}
	w.hits = append(w.hits, weightedHit{at: now, weight: n})
	return 0, true
}

// tokenBucketWindow wraps golang.org/x/time/rate for the token-bucket
// strategy.
type tokenBucketWindow struct {
	limiter *rate.Limiter
}

func (w *tokenBucketWindow) allow(n int) (time.Duration, bool) {
	if n <= 0 {
		n = 1
	}
	r := w.limiter.ReserveN(time.Now(), n)
	if !r.OK() {
		return time.Second, false
	}
	delay := r.Delay()
	if delay > 0 {
		r.Cancel()
		return delay, false
	}
	return 0, true
}
