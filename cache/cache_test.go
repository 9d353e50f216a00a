package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byokit/byokit/events"
)

func TestFingerprint_StableForIdenticalInput(t *testing.T) {
	in := FingerprintInput{Provider: "openai", Model: "gpt-4o", Messages: []Message{{Role: "user", Content: "hi"}}}
	f1, err := Fingerprint(in)
	require.NoError(t, err)
	f2, err := Fingerprint(in)
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
}

func TestFingerprint_DiffersOnMessageContent(t *testing.T) {
	in1 := FingerprintInput{Provider: "openai", Model: "gpt-4o", Messages: []Message{{Role: "user", Content: "hi"}}}
	in2 := FingerprintInput{Provider: "openai", Model: "gpt-4o", Messages: []Message{{Role: "user", Content: "bye"}}}
	f1, err := Fingerprint(in1)
	require.NoError(t, err)
	f2, err := Fingerprint(in2)
	require.NoError(t, err)
	assert.NotEqual(t, f1, f2)
}

func TestCache_SetThenGetHit(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(10, 0), WithTTL(time.Minute))

	require.NoError(t, c.Set(ctx, "fp1", "openai", "gpt-4o", []byte(`{"ok":true}`)))

	val, ok, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(val))
}

func TestCache_MissEmitsEvent(t *testing.T) {
	ctx := context.Background()
	bus := events.New()
	var misses int
	_, err := bus.On(events.CacheMiss, func(events.Event) { misses++ })
	require.NoError(t, err)

	c := New(NewMemoryBackend(10, 0), WithEventBus(bus))
	_, ok, err := c.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, misses)
}

func TestCache_ExpiredEntryReadsAsMiss(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(10, 0), WithTTL(time.Millisecond))
	require.NoError(t, c.Set(ctx, "fp1", "openai", "gpt-4o", []byte("value")))

	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_CompressionRoundTrips(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(10, 0), WithCompression())
	payload := []byte(`{"content":"this is a longer response body to compress"}`)

	require.NoError(t, c.Set(ctx, "fp1", "openai", "gpt-4o", payload))
	got, ok, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestMemoryBackend_EvictsLRUOnEntryCap(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(2, 0)

	require.NoError(t, b.Set(ctx, "a", &Entry{Value: []byte("a")}))
	require.NoError(t, b.Set(ctx, "b", &Entry{Value: []byte("b")}))
	_, _, _ = b.Get(ctx, "a") // touch a, making b the LRU victim
	require.NoError(t, b.Set(ctx, "c", &Entry{Value: []byte("c")}))

	_, ok, _ := b.Get(ctx, "b")
	assert.False(t, ok, "b should have been evicted as least recently used")

	_, ok, _ = b.Get(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = b.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryBackend_EvictsOnSizeCap(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(0, 10)

	require.NoError(t, b.Set(ctx, "a", &Entry{Value: make([]byte, 6)}))
	require.NoError(t, b.Set(ctx, "b", &Entry{Value: make([]byte, 6)}))

	_, ok, _ := b.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = b.Get(ctx, "b")
	assert.True(t, ok)
}

func TestRedisBackend_SetGetRemove(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	b := NewRedisBackend(client, "test:cache", 0)

	entry := &Entry{Value: []byte("hello"), Provider: "openai", Model: "gpt-4o", CreatedAt: time.Now()}
	require.NoError(t, b.Set(ctx, "fp1", entry))

	got, ok, err := b.Get(ctx, "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(got.Value))

	require.NoError(t, b.Remove(ctx, "fp1"))
	_, ok, err = b.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.False(t, ok)
}
