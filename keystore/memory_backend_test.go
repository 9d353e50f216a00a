package keystore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	rec := &Stored{Version: 1, Plaintext: []byte("sk-x"), CreatedAt: time.Now(), Fingerprint: "abcd"}
	require.NoError(t, b.Set(ctx, "openai", rec))

	got, ok, err := b.Get(ctx, "openai")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sk-x", string(got.Plaintext))

	require.NoError(t, b.Remove(ctx, "openai"))
	_, ok, err = b.Get(ctx, "openai")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBackend_GetReturnsDefensiveCopy(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Set(ctx, "openai", &Stored{Plaintext: []byte("sk-x")}))

	got, _, err := b.Get(ctx, "openai")
	require.NoError(t, err)
	got.Plaintext[0] = 'Z'

	got2, _, err := b.Get(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-x", string(got2.Plaintext))
}

func TestMemoryBackend_ListAndClear(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Set(ctx, "openai", &Stored{}))
	require.NoError(t, b.Set(ctx, "anthropic", &Stored{}))

	list, err := b.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"openai", "anthropic"}, list)

	require.NoError(t, b.Clear(ctx))
	list, err = b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
