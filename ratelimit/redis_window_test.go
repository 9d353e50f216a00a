package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisWindow_AllowsUnderLimit(t *testing.T) {
	client := newTestRedisClient(t)
	w := NewRedisWindow(client, "rl:test", 3)

	for i := 0; i < 3; i++ {
		_, ok, err := w.Allow(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRedisWindow_RejectsOverLimit(t *testing.T) {
	client := newTestRedisClient(t)
	w := NewRedisWindow(client, "rl:test2", 2)

	for i := 0; i < 2; i++ {
		_, ok, err := w.Allow(context.Background(), 1)
		require.NoError(t, err)
		require.True(t, ok)
	}

	wait, ok, err := w.Allow(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
}

func TestRedisWindow_ZeroLimitAlwaysAllows(t *testing.T) {
	client := newTestRedisClient(t)
	w := NewRedisWindow(client, "rl:test3", 0)
	_, ok, err := w.Allow(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, ok)
}
