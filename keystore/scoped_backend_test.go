package keystore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopedBackend_IsolatesScopesSharingOneInner(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend()
	tabA := NewScopedBackend(inner, "tab-a")
	tabB := NewScopedBackend(inner, "tab-b")

	require.NoError(t, tabA.Set(ctx, "openai", &Stored{Plaintext: []byte("a-key")}))
	require.NoError(t, tabB.Set(ctx, "openai", &Stored{Plaintext: []byte("b-key")}))

	gotA, ok, err := tabA.Get(ctx, "openai")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a-key", string(gotA.Plaintext))

	gotB, ok, err := tabB.Get(ctx, "openai")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b-key", string(gotB.Plaintext))
}

func TestScopedBackend_ClearOnlyAffectsOwnScope(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend()
	tabA := NewScopedBackend(inner, "tab-a")
	tabB := NewScopedBackend(inner, "tab-b")

	require.NoError(t, tabA.Set(ctx, "openai", &Stored{}))
	require.NoError(t, tabB.Set(ctx, "openai", &Stored{}))

	require.NoError(t, tabA.Clear(ctx))

	listA, err := tabA.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, listA)

	listB, err := tabB.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"openai"}, listB)
}
