package keystore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byokit/byokit/events"
)

func TestStore_SetGetPlaintext(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend())

	require.NoError(t, store.Set(ctx, "openai", "sk-abcdefgh", 0))

	key, ok, err := store.Get(ctx, "openai")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sk-abcdefgh", string(key))
}

func TestStore_SetGetEncrypted(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), WithEncryption("passphrase"))

	require.NoError(t, store.Set(ctx, "openai", "sk-abcdefgh", 0))

	key, ok, err := store.Get(ctx, "openai")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sk-abcdefgh", string(key))
}

func TestStore_SetRejectsInvalidKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend())

	err := store.Set(ctx, "openai", "bad-format", 0)
	assert.Error(t, err)

	_, ok, err := store.Get(ctx, "openai")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ExpiredKeyReadsAsAbsentAndEmitsEvent(t *testing.T) {
	ctx := context.Background()
	bus := events.New()

	var expiredEvents int
	_, err := bus.On(events.KeyExpired, func(events.Event) { expiredEvents++ })
	require.NoError(t, err)

	store := NewStore(NewMemoryBackend(), WithEventBus(bus))
	require.NoError(t, store.Set(ctx, "openai", "sk-abcdefgh", time.Millisecond))

	time.Sleep(5 * time.Millisecond)

	_, ok, err := store.Get(ctx, "openai")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, expiredEvents)
}

func TestStore_RotateLeavesPreviousKeyIntactOnValidationFailure(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend())
	require.NoError(t, store.Set(ctx, "openai", "sk-original1", 0))

	_, _, err := store.Rotate(ctx, "openai", "bad-format", 0)
	assert.Error(t, err)

	key, ok, err := store.Get(ctx, "openai")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sk-original1", string(key))
}

func TestStore_RotateReplacesKeyAndEmits(t *testing.T) {
	ctx := context.Background()
	bus := events.New()
	var rotated bool
	_, err := bus.On(events.KeyRotate, func(events.Event) { rotated = true })
	require.NoError(t, err)

	store := NewStore(NewMemoryBackend(), WithEventBus(bus))
	require.NoError(t, store.Set(ctx, "openai", "sk-original1", 0))
	oldFp, newFp, err := store.Rotate(ctx, "openai", "sk-rotated1", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, oldFp)
	assert.NotEmpty(t, newFp)
	assert.NotEqual(t, oldFp, newFp)

	key, ok, err := store.Get(ctx, "openai")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sk-rotated1", string(key))
	assert.True(t, rotated)
}

func TestStore_RemoveAndList(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend())
	require.NoError(t, store.Set(ctx, "openai", "sk-abcdefgh", 0))
	require.NoError(t, store.Set(ctx, "anthropic", "sk-ant-abcdefgh", 0))

	require.NoError(t, store.Remove(ctx, "openai"))
	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic"}, list)
}

func TestStore_DestroyClearsAndCloses(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend())
	require.NoError(t, store.Set(ctx, "openai", "sk-abcdefgh", 0))

	require.NoError(t, store.Destroy(ctx))

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestResolveBackend_FallsBackToMemoryAndWarns(t *testing.T) {
	bus := events.New()
	var warned bool
	_, err := bus.On(events.SecurityWarning, func(events.Event) { warned = true })
	require.NoError(t, err)

	b := ResolveBackend(BackendIndexedDB, BackendConfig{}, bus, nil)
	assert.IsType(t, &MemoryBackend{}, b)
	assert.True(t, warned)
}
