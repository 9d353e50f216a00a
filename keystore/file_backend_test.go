package keystore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keys.json")

	b1, err := NewFileBackend(path)
	require.NoError(t, err)
	require.NoError(t, b1.Set(ctx, "openai", &Stored{
		Plaintext: []byte("sk-file-test"), CreatedAt: time.Now(), Fingerprint: "ab12",
	}))

	b2, err := NewFileBackend(path)
	require.NoError(t, err)
	got, ok, err := b2.Get(ctx, "openai")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sk-file-test", string(got.Plaintext))
}

func TestFileBackend_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keys.json")

	b, err := NewFileBackend(path)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "openai", &Stored{}))
	require.NoError(t, b.Set(ctx, "anthropic", &Stored{}))

	require.NoError(t, b.Remove(ctx, "openai"))
	list, err := b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic"}, list)

	require.NoError(t, b.Clear(ctx))
	list, err = b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFileBackend_CreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "keys.json")
	_, err := NewFileBackend(path)
	require.NoError(t, err)
}
