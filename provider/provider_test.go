package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byokit/byokit/errs"
	"github.com/byokit/byokit/keystore"
	"github.com/byokit/byokit/retry"
	"github.com/byokit/byokit/validate"
)

func testDeps(t *testing.T, provider, key string) Deps {
	t.Helper()
	store := keystore.NewStore(keystore.NewMemoryBackend())
	if key != "" {
		require.NoError(t, store.Set(context.Background(), provider, key, 0))
	}
	return Deps{
		Client:    http.DefaultClient,
		Keys:      store,
		RetryOpts: retry.Options{MaxRetries: 0},
	}
}

func TestOpenAI_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test-key-0000000", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "Hello there!"}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 15, "total_tokens": 25},
		})
	}))
	defer srv.Close()

	deps := testDeps(t, "openai", "sk-test-key-0000000")
	p := New("openai", srv.URL, deps)

	resp, err := p.Chat(context.Background(), &validate.Request{Provider: "openai", Model: "gpt-4-turbo", Messages: []validate.Message{{Role: "user", Content: "Hello"}}})
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", resp.Choices[0].Message.Content)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 25, resp.Usage.TotalTokens)
}

func TestOpenAI_ChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range []string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: [DONE]`,
		} {
			w.Write([]byte(frame + "\n\n"))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	deps := testDeps(t, "openai", "sk-test-key-0000000")
	p := New("openai", srv.URL, deps)

	ch, err := p.ChatStream(context.Background(), &validate.Request{Provider: "openai", Model: "gpt-4-turbo", Messages: []validate.Message{{Role: "user", Content: "Hi"}}})
	require.NoError(t, err)

	var text string
	for ev := range ch {
		require.NoError(t, ev.Err)
		for _, c := range ev.Delta.Choices {
			text += c.DeltaContent
		}
	}
	assert.Equal(t, "Hello", text)
}

func TestAnthropic_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "be helpful", body["system"])

		json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg_1",
			"model": "claude-3-5-sonnet-20241022",
			"content": []map[string]any{
				{"type": "text", "text": "hi there"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 5, "output_tokens": 3},
		})
	}))
	defer srv.Close()

	deps := testDeps(t, "anthropic", "sk-ant-test")
	p := New("anthropic", srv.URL, deps)

	resp, err := p.Chat(context.Background(), &validate.Request{
		Provider: "anthropic", Model: "claude-3-5-sonnet-20241022",
		Messages: []validate.Message{{Role: "system", Content: "be helpful"}, {Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Choices[0].Message.Content)
	assert.Equal(t, FinishStop, resp.Choices[0].FinishReason)
	assert.Equal(t, 8, resp.Usage.TotalTokens)
}

func TestGoogle_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "key=AIzatest")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "bonjour"}}}, "finishReason": "STOP"},
			},
			"usageMetadata": map[string]any{"promptTokenCount": 2, "candidatesTokenCount": 3, "totalTokenCount": 5},
		})
	}))
	defer srv.Close()

	deps := testDeps(t, "google", "AIzatest")
	p := New("google", srv.URL, deps)

	resp, err := p.Chat(context.Background(), &validate.Request{Provider: "google", Model: "gemini-1.5-pro", Messages: []validate.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "bonjour", resp.Choices[0].Message.Content)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestOllama_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model":             "llama3.1",
			"message":           map[string]any{"role": "assistant", "content": "hey"},
			"done":              true,
			"prompt_eval_count": 4,
			"eval_count":        2,
		})
	}))
	defer srv.Close()

	deps := testDeps(t, "ollama", "")
	p := New("ollama", srv.URL, deps)

	resp, err := p.Chat(context.Background(), &validate.Request{Provider: "ollama", Model: "llama3.1", Messages: []validate.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "hey", resp.Choices[0].Message.Content)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
}

func TestAdapter_HTTPErrorMapsToRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "slow down"}})
	}))
	defer srv.Close()

	deps := testDeps(t, "openai", "sk-test")
	p := New("openai", srv.URL, deps)

	_, err := p.Chat(context.Background(), &validate.Request{Provider: "openai", Model: "gpt-4o", Messages: []validate.Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.RateLimited, e.Kind)
}

func TestCompatible_UsesOpenAIWireShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "x", "choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": "ok"}, "finish_reason": "stop"}},
		})
	}))
	defer srv.Close()

	deps := testDeps(t, "groq", "gsk-test")
	p := New("groq", srv.URL, deps)
	assert.True(t, p.Supports().Streaming)

	resp, err := p.Chat(context.Background(), &validate.Request{Provider: "groq", Model: "llama-3.1-70b-versatile", Messages: []validate.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Message.Content)
}

func TestBaseProvider_CredentialMissingReturnsKeyNotSet(t *testing.T) {
	store := keystore.NewStore(keystore.NewMemoryBackend())
	base := NewBaseProvider("openai", "http://example.invalid", nil, store, nil, nil, nil)
	_, err := base.Credential(context.Background())
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KeyNotSet, e.Kind)
}

func TestBaseProvider_TimeoutDefault(t *testing.T) {
	base := NewBaseProvider("openai", "http://example.invalid", nil, nil, nil, nil, nil)
	assert.Equal(t, 60*time.Second, base.Timeout)
}
