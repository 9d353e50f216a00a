// Package cache implements the response Cache (C7): a fingerprint-keyed
// store with LRU+TTL+size-cap eviction, optional compression, and an
// event-emitting front that a Redis-backed Backend can sit behind for
// multi-process sharing.
package cache

import (
	"bytes"
	"compress/gzip"
	"container/list"
	"context"
	"io"
	"sync"
	"time"

	"github.com/byokit/byokit/events"
)

// Entry is one cached response payload.
type Entry struct {
	Value      []byte
	Compressed bool
	Provider   string
	Model      string
	CreatedAt  time.Time
}

// Backend is the storage layer beneath Cache. MemoryBackend is the
// default; RedisBackend lets cached entries survive a process restart or
// be shared across instances.
type Backend interface {
	Get(ctx context.Context, fingerprint string) (*Entry, bool, error)
	Set(ctx context.Context, fingerprint string, entry *Entry) error
	Remove(ctx context.Context, fingerprint string) error
	Clear(ctx context.Context) error
}

// Cache is the public C7 surface: Backend-agnostic, optionally
// compressing values, and emitting cache:hit/cache:miss/cache:set events.
type Cache struct {
	mu      sync.Mutex
	backend Backend
	bus     *events.Bus
	ttl     time.Duration
	gzip    bool
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithTTL sets how long an entry remains valid after being written.
// Entries older than ttl are treated as absent on read, per §4.7.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithEventBus attaches the bus cache:hit/cache:miss/cache:set events are
// emitted to.
func WithEventBus(bus *events.Bus) Option {
	return func(c *Cache) { c.bus = bus }
}

// WithCompression gzip-compresses values before they reach the backend.
func WithCompression() Option {
	return func(c *Cache) { c.gzip = true }
}

// New wraps backend with the Cache business logic.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{backend: backend, ttl: 5 * time.Minute}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) emit(kind events.Kind, provider, model string) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(events.Event{Kind: kind, Provider: provider, Model: model})
}

// Get looks up fingerprint. A stale entry (older than the configured TTL)
// is treated as a miss and removed.
func (c *Cache) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	entry, ok, err := c.backend.Get(ctx, fingerprint)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		c.emit(events.CacheMiss, "", "")
		return nil, false, nil
	}
	if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
		_ = c.backend.Remove(ctx, fingerprint)
		c.emit(events.CacheMiss, entry.Provider, entry.Model)
		return nil, false, nil
	}

	value := entry.Value
	if entry.Compressed {
		value, err = decompress(value)
		if err != nil {
			return nil, false, err
		}
	}
	c.emit(events.CacheHit, entry.Provider, entry.Model)
	return value, true, nil
}

// Set writes value under fingerprint, compressing it first if the Cache
// was built WithCompression.
func (c *Cache) Set(ctx context.Context, fingerprint, provider, model string, value []byte) error {
	stored := value
	compressed := false
	if c.gzip {
		var err error
		stored, err = compress(value)
		if err != nil {
			return err
		}
		compressed = true
	}

	entry := &Entry{
		Value:      stored,
		Compressed: compressed,
		Provider:   provider,
		Model:      model,
		CreatedAt:  time.Now(),
	}
	if err := c.backend.Set(ctx, fingerprint, entry); err != nil {
		return err
	}
	c.emit(events.CacheSet, provider, model)
	return nil
}

// Remove evicts fingerprint, if present.
func (c *Cache) Remove(ctx context.Context, fingerprint string) error {
	return c.backend.Remove(ctx, fingerprint)
}

// Clear empties the cache.
func (c *Cache) Clear(ctx context.Context) error {
	return c.backend.Clear(ctx)
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// MemoryBackend is an in-process LRU cache bounded by both entry count
// and an estimated aggregate byte size, per §4.7's "at most maxEntries;
// aggregate estimated size ≤ maxSize" invariant. Reads move an entry to
// the front of the LRU list; writes evict from the back once either cap
// is exceeded.
type MemoryBackend struct {
	mu         sync.Mutex
	maxEntries int
	maxSize    int64
	size       int64
	lru        *list.List
	index      map[string]*list.Element
}

type memoryRecord struct {
	fingerprint string
	entry       *Entry
}

// NewMemoryBackend builds an LRU store capped at maxEntries records and
// maxSize aggregate bytes (0 means unbounded on that axis).
func NewMemoryBackend(maxEntries int, maxSize int64) *MemoryBackend {
	return &MemoryBackend{
		maxEntries: maxEntries,
		maxSize:    maxSize,
		lru:        list.New(),
		index:      make(map[string]*list.Element),
	}
}

func (m *MemoryBackend) Get(_ context.Context, fingerprint string) (*Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.index[fingerprint]
	if !ok {
		return nil, false, nil
	}
	m.lru.MoveToFront(el)
	rec := el.Value.(*memoryRecord)
	cp := *rec.entry
	return &cp, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, fingerprint string, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.index[fingerprint]; ok {
		old := el.Value.(*memoryRecord)
		m.size -= int64(len(old.entry.Value))
		cp := *entry
		old.entry = &cp
		m.size += int64(len(entry.Value))
		m.lru.MoveToFront(el)
		m.evict()
		return nil
	}

	cp := *entry
	el := m.lru.PushFront(&memoryRecord{fingerprint: fingerprint, entry: &cp})
	m.index[fingerprint] = el
	m.size += int64(len(entry.Value))
	m.evict()
	return nil
}

func (m *MemoryBackend) evict() {
	for m.overCapacity() {
		back := m.lru.Back()
		if back == nil {
			return
		}
		rec := back.Value.(*memoryRecord)
		m.lru.Remove(back)
		delete(m.index, rec.fingerprint)
		m.size -= int64(len(rec.entry.Value))
	}
}

func (m *MemoryBackend) overCapacity() bool {
	if m.maxEntries > 0 && m.lru.Len() > m.maxEntries {
		return true
	}
	if m.maxSize > 0 && m.size > m.maxSize {
		return true
	}
	return false
}

func (m *MemoryBackend) Remove(_ context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.index[fingerprint]
	if !ok {
		return nil
	}
	rec := el.Value.(*memoryRecord)
	m.lru.Remove(el)
	delete(m.index, fingerprint)
	m.size -= int64(len(rec.entry.Value))
	return nil
}

func (m *MemoryBackend) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Init()
	m.index = make(map[string]*list.Element)
	m.size = 0
	return nil
}
