package middleware

import (
	"errors"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byokit/byokit/errs"
	"github.com/byokit/byokit/validate"
)

func TestChain_RunsBeforeRequestInPriorityOrder(t *testing.T) {
	c := New()
	var order []string

	c.Use(&Middleware{Name: "b", Priority: 5, Enabled: true, BeforeRequest: func(req any, _ *Context) (any, error) {
		order = append(order, "b")
		return req, nil
	}})
	c.Use(&Middleware{Name: "a", Priority: -1, Enabled: true, BeforeRequest: func(req any, _ *Context) (any, error) {
		order = append(order, "a")
		return req, nil
	}})

	_, err := c.RunBeforeRequest("req", NewContext("r1", "openai", "gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestChain_DisabledMiddlewareSkipped(t *testing.T) {
	c := New()
	called := false
	c.Use(&Middleware{Name: "x", Enabled: false, BeforeRequest: func(req any, _ *Context) (any, error) {
		called = true
		return req, nil
	}})

	_, err := c.RunBeforeRequest("req", NewContext("r1", "openai", "gpt-4o"))
	require.NoError(t, err)
	assert.False(t, called)
}

func TestChain_RemoveReportsWhetherPresent(t *testing.T) {
	c := New()
	c.Use(&Middleware{Name: "x", Enabled: true})
	assert.True(t, c.Remove("x"))
	assert.False(t, c.Remove("x"))
}

func TestChain_PanicInMiddlewareBecomesMiddlewareError(t *testing.T) {
	c := New()
	c.Use(&Middleware{Name: "boom", Enabled: true, BeforeRequest: func(any, *Context) (any, error) {
		panic("kaboom")
	}})

	_, err := c.RunBeforeRequest("req", NewContext("r1", "", ""))
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.MiddlewareError, e.Kind)
}

func TestChain_OnErrorCanShortCircuit(t *testing.T) {
	c := New()
	c.Use(&Middleware{Name: "recover", Enabled: true, OnError: func(err error, _ *Context) (error, any, bool) {
		return nil, "recovered-response", true
	}})

	finalErr, recovered, short := c.RunOnError(errors.New("boom"), NewContext("r1", "", ""))
	assert.True(t, short)
	assert.Equal(t, "recovered-response", recovered)
	assert.NoError(t, finalErr)
}

func TestSanitizing_ClampsRequest(t *testing.T) {
	m := NewSanitizing()
	hot := 10.0
	req := &validate.Request{Model: " gpt-4o ", Temperature: &hot}

	out, err := m.BeforeRequest(req, NewContext("r1", "", ""))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", out.(*validate.Request).Model)
	assert.Equal(t, 2.0, *out.(*validate.Request).Temperature)
}

func TestValidation_StrictModeRejectsInvalidRequest(t *testing.T) {
	m := NewValidation(validate.Options{}, true, nil)
	req := &validate.Request{}

	_, err := m.BeforeRequest(req, NewContext("r1", "", ""))
	assert.Error(t, err)
}

func TestValidation_NonStrictModePassesThrough(t *testing.T) {
	m := NewValidation(validate.Options{}, false, nil)
	req := &validate.Request{}

	out, err := m.BeforeRequest(req, NewContext("r1", "", ""))
	require.NoError(t, err)
	assert.Same(t, req, out)
}

func TestContentFilter_BlocksMatchingPattern(t *testing.T) {
	m := NewContentFilter(ContentFilterOptions{
		BlockedPatterns: []*regexp.Regexp{regexp.MustCompile(`(?i)forbidden`)},
	})
	req := &validate.Request{Provider: "openai", Messages: []validate.Message{{Role: "user", Content: "this is forbidden content"}}}

	_, err := m.BeforeRequest(req, NewContext("r1", "openai", ""))
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.ContentFiltered, e.Kind)
}

func TestContentFilter_LuaScriptBlocksContent(t *testing.T) {
	script := `function is_blocked(text) return string.find(text, "banned") ~= nil end`
	m := NewContentFilter(ContentFilterOptions{LuaScript: script})
	req := &validate.Request{Provider: "openai", Messages: []validate.Message{{Role: "user", Content: "a banned word"}}}

	_, err := m.BeforeRequest(req, NewContext("r1", "openai", ""))
	require.Error(t, err)
}

func TestFallback_SetsShouldFallbackOnRetryableError(t *testing.T) {
	m := NewFallback(map[string]FallbackTarget{"openai": {Provider: "anthropic", Model: "claude-3-haiku-20240307"}})
	ctx := NewContext("r1", "openai", "")
	_, _, _ = m.OnError(errs.New(errs.RateLimited, "openai", "slow down"), ctx)
	assert.Equal(t, true, ctx.Data["shouldFallback"])
	assert.Equal(t, "anthropic", ctx.Data["fallbackProvider"])
	assert.Equal(t, "claude-3-haiku-20240307", ctx.Data["fallbackModel"])
}

func TestFallback_NoTargetLeavesHintUnset(t *testing.T) {
	m := NewFallback(map[string]FallbackTarget{})
	ctx := NewContext("r1", "openai", "")
	_, _, _ = m.OnError(errs.New(errs.RateLimited, "openai", "slow down"), ctx)
	assert.Nil(t, ctx.Data["shouldFallback"])
}

func TestMetrics_RecordsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewMetricsRecorder(reg)
	m := NewMetrics(rec)

	ctx := NewContext("r1", "openai", "gpt-4o")
	_, err := m.BeforeRequest("req", ctx)
	require.NoError(t, err)
	_, err = m.AfterResponse("resp", ctx)
	require.NoError(t, err)

	metrics, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metrics)
}

func TestRetryHint_SetsHintOnRetryableError(t *testing.T) {
	m := NewRetryHint()
	ctx := NewContext("r1", "openai", "")
	_, _, _ = m.OnError(errs.New(errs.RateLimited, "openai", "slow down"), ctx)
	assert.Equal(t, true, ctx.Data["retryHint"])
}
