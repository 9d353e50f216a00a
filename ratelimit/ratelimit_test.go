package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byokit/byokit/errs"
	"github.com/byokit/byokit/events"
)

func TestLimiter_AllowsUnderCeiling(t *testing.T) {
	l := New(Config{Global: Limits{RequestsPerMinute: 5, MaxConcurrent: 5}, WaitCap: time.Second})
	release, err := l.Acquire(context.Background(), "openai", 0)
	require.NoError(t, err)
	release()
}

func TestLimiter_MaxConcurrentBlocksUntilReleased(t *testing.T) {
	l := New(Config{Global: Limits{MaxConcurrent: 1}, WaitCap: 200 * time.Millisecond})
	release, err := l.Acquire(context.Background(), "openai", 0)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "openai", 0)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.RateLimited, e.Kind)

	release()
	release2, err := l.Acquire(context.Background(), "openai", 0)
	require.NoError(t, err)
	release2()
}

func TestLimiter_RequestsPerMinuteFixedWindow(t *testing.T) {
	l := New(Config{Strategy: FixedWindow, Global: Limits{RequestsPerMinute: 1}, WaitCap: 50 * time.Millisecond})
	release, err := l.Acquire(context.Background(), "openai", 0)
	require.NoError(t, err)
	release()

	_, err = l.Acquire(context.Background(), "openai", 0)
	require.Error(t, err)
}

func TestLimiter_PerProviderOverridesGlobal(t *testing.T) {
	l := New(Config{
		Global:      Limits{MaxConcurrent: 10},
		PerProvider: map[string]Limits{"anthropic": {MaxConcurrent: 1}},
		WaitCap:     50 * time.Millisecond,
	})
	release, err := l.Acquire(context.Background(), "anthropic", 0)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "anthropic", 0)
	require.Error(t, err)

	// openai has no override, inherits the generous global limit.
	release2, err := l.Acquire(context.Background(), "openai", 0)
	require.NoError(t, err)
	release()
	release2()
}

func TestLimiter_EmitsRateLimitedEvent(t *testing.T) {
	bus := events.New()
	seen := make(chan events.Event, 1)
	_, err := bus.On(events.RateLimited, func(e events.Event) { seen <- e })
	require.NoError(t, err)

	l := New(Config{Global: Limits{MaxConcurrent: 1}, WaitCap: 50 * time.Millisecond}, WithEventBus(bus))
	release, err := l.Acquire(context.Background(), "openai", 0)
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(context.Background(), "openai", 0)
	require.Error(t, err)

	select {
	case e := <-seen:
		assert.Equal(t, "openai", e.Provider)
	case <-time.After(time.Second):
		t.Fatal("expected rate:limited event")
	}
}

func TestLimiter_ContextCancellationAborts(t *testing.T) {
	l := New(Config{Global: Limits{MaxConcurrent: 1}, WaitCap: 5 * time.Second})
	release, err := l.Acquire(context.Background(), "openai", 0)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err = l.Acquire(ctx, "openai", 0)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.Aborted, e.Kind)
}

func TestLimiter_TokenBucketStrategyCapsTokens(t *testing.T) {
	l := New(Config{Strategy: TokenBucket, Global: Limits{TokensPerMinute: 60}, WaitCap: 50 * time.Millisecond})
	release, err := l.Acquire(context.Background(), "openai", 60)
	require.NoError(t, err)
	release()

	_, err = l.Acquire(context.Background(), "openai", 60)
	require.Error(t, err)
}
