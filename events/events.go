// Package events implements the typed, synchronous, in-process pub/sub bus
// (§4.1) that every byokit component publishes lifecycle notifications
// through. It deliberately has no buffering and no background goroutine:
// Emit calls every matching listener synchronously, on the caller's
// goroutine, the same way the teacher's chi middleware.Logger writes
// synchronously into the request's goroutine rather than handing log lines
// to a worker.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// Kind is the closed set of event kinds recognized by §4.1.
type Kind string

const (
	RequestStart     Kind = "request:start"
	RequestEnd       Kind = "request:end"
	RequestError     Kind = "request:error"
	RequestRetry     Kind = "request:retry"
	StreamStart      Kind = "stream:start"
	StreamChunk      Kind = "stream:chunk"
	StreamEnd        Kind = "stream:end"
	StreamError      Kind = "stream:error"
	StreamAbort      Kind = "stream:abort"
	KeySet           Kind = "key:set"
	KeyRemove        Kind = "key:remove"
	KeyExpired       Kind = "key:expired"
	KeyRotate        Kind = "key:rotate"
	KeyValidate      Kind = "key:validate"
	KeyError         Kind = "key:error"
	CacheHit         Kind = "cache:hit"
	CacheMiss        Kind = "cache:miss"
	CacheSet         Kind = "cache:set"
	RetryAttempt     Kind = "retry:attempt"
	RateLimited      Kind = "rate:limited"
	MiddlewareBefore Kind = "middleware:before"
	MiddlewareAfter  Kind = "middleware:after"
	BatchProgress    Kind = "batch:progress"
	BatchComplete    Kind = "batch:complete"
	SecurityWarning  Kind = "security:warning"
)

// Event is the payload delivered to every listener. Fields are deliberately
// loose (map[string]any) rather than one struct per Kind: the spec's
// invariant is "no plaintext credentials or request bodies" regardless of
// kind, which is far easier to audit at one call site (Emit) than across
// fifteen struct definitions.
type Event struct {
	Kind      Kind
	RequestID string
	Provider  string
	Model     string
	Data      map[string]any
}

// Listener receives events of a single kind, or every kind when registered
// via OnAll.
type Listener func(Event)

const (
	defaultSoftWarnLimit = 10
	defaultHardCap       = 100
)

// subscription pairs a listener with the id used to remove it later. Go func
// values aren't comparable, so Off can't just scan for equality — every
// subscriber gets an id at registration time instead.
type subscription struct {
	id int
	l  Listener
}

// Bus is the pub/sub hub. The zero value is not usable — construct with New.
type Bus struct {
	mu         sync.RWMutex
	listeners  map[Kind][]subscription
	all        []subscription
	nextID     int
	softWarnAt int
	hardCap    int
	logger     *zap.Logger
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithMaxListeners overrides the soft-warning and hard-cap listener counts
// per kind (§4.1: "soft-warning listener count (default 10) and a hard cap
// (default 100, configurable)").
func WithMaxListeners(softWarnAt, hardCap int) Option {
	return func(b *Bus) {
		b.softWarnAt = softWarnAt
		b.hardCap = hardCap
	}
}

// WithLogger attaches a structured logger used to report listener panics
// and soft-limit warnings. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New constructs an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		listeners:  make(map[Kind][]subscription),
		softWarnAt: defaultSoftWarnLimit,
		hardCap:    defaultHardCap,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// errTooManyListeners is returned (wrapped as errs.VALIDATION_ERROR by the
// Orchestrator, which owns the error model) when a subscription would push a
// kind past its hard cap. events doesn't import errs itself to avoid a
// dependency cycle risk as the module grows; callers translate the error.
type errTooManyListeners struct{ kind Kind }

func (e errTooManyListeners) Error() string {
	return "too many listeners for event kind " + string(e.kind)
}

// On subscribes listener to a single event kind. Returns a subscription id
// usable with Off, or an error if the kind is already at its hard cap.
func (b *Bus) On(kind Kind, l Listener) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := b.listeners[kind]
	if len(existing) >= b.hardCap {
		return 0, errTooManyListeners{kind: kind}
	}
	if len(existing) == b.softWarnAt {
		b.logger.Warn("listener count for event kind exceeds soft warning threshold",
			zap.String("kind", string(kind)),
			zap.Int("count", len(existing)+1),
		)
	}
	b.nextID++
	id := b.nextID
	b.listeners[kind] = append(existing, subscription{id: id, l: l})
	return id, nil
}

// OnAll subscribes listener to every event kind.
func (b *Bus) OnAll(l Listener) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.all) >= b.hardCap {
		return 0, errTooManyListeners{kind: "*"}
	}
	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, l: l})
	return id, nil
}

// Off removes the listener registered under id for the given kind. Pass the
// zero Kind to remove an OnAll subscription. Reports whether a listener was
// actually removed.
func (b *Bus) Off(kind Kind, id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if kind == "" {
		for i, s := range b.all {
			if s.id == id {
				b.all = append(b.all[:i], b.all[i+1:]...)
				return true
			}
		}
		return false
	}

	subs := b.listeners[kind]
	for i, s := range subs {
		if s.id == id {
			b.listeners[kind] = append(subs[:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAllListeners detaches every listener from every kind, used by
// Orchestrator.Destroy.
func (b *Bus) RemoveAllListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[Kind][]subscription)
	b.all = nil
}

// SetMaxListeners overrides the soft-warning and hard-cap thresholds after
// construction.
func (b *Bus) SetMaxListeners(softWarnAt, hardCap int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.softWarnAt = softWarnAt
	b.hardCap = hardCap
}

// Emit delivers ev to every listener subscribed to ev.Kind plus every
// "all kinds" listener, in subscription order. A listener that panics is
// caught and logged; it never interrupts delivery to the listeners after it
// (§4.1: "Listener exceptions are caught and logged; they do not interrupt
// delivery to subsequent listeners").
//
// Emit takes a snapshot of the listener slices before iterating so that a
// listener which itself calls On/OnAll (or RemoveAll) during delivery can't
// corrupt this call's iteration — the same defensive copy the teacher's
// provider adapters use before ranging over a response's content blocks.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	kindListeners := append([]subscription(nil), b.listeners[ev.Kind]...)
	allListeners := append([]subscription(nil), b.all...)
	b.mu.RUnlock()

	deliver := func(l Listener) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event listener panicked",
					zap.String("kind", string(ev.Kind)),
					zap.Any("recovered", r),
				)
			}
		}()
		l(ev)
	}

	for _, s := range kindListeners {
		deliver(s.l)
	}
	for _, s := range allListeners {
		deliver(s.l)
	}
}
