package keystore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisBackend(t *testing.T) *RedisBackend {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisBackend(client, "test:keystore")
}

func TestRedisBackend_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBackend(t)

	require.NoError(t, b.Set(ctx, "openai", &Stored{Plaintext: []byte("sk-redis"), Fingerprint: "ab12"}))

	got, ok, err := b.Get(ctx, "openai")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sk-redis", string(got.Plaintext))

	require.NoError(t, b.Remove(ctx, "openai"))
	_, ok, err = b.Get(ctx, "openai")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBackend_ListScopedToNamespace(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBackend(t)

	require.NoError(t, b.Set(ctx, "openai", &Stored{}))
	require.NoError(t, b.Set(ctx, "anthropic", &Stored{}))

	list, err := b.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"openai", "anthropic"}, list)
}

func TestRedisBackend_Clear(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBackend(t)

	require.NoError(t, b.Set(ctx, "openai", &Stored{}))
	require.NoError(t, b.Clear(ctx))

	list, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
