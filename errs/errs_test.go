package errs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTTPStatus_Mapping(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{401, KeyInvalid},
		{403, KeyInvalid},
		{404, ModelNotFound},
		{408, Timeout},
		{413, ContextLengthExceeded},
		{429, RateLimited},
		{451, ContentFiltered},
		{500, RequestFailed},
		{502, RequestFailed},
		{503, RequestFailed},
		{504, RequestFailed},
		{529, RequestFailed},
		{599, UnknownError},
	}
	for _, c := range cases {
		e := FromHTTPStatus(c.status, "openai", nil, "")
		assert.Equal(t, c.want, e.Kind, "status %d", c.status)
	}
}

func TestFromHTTPStatus_400Disambiguation(t *testing.T) {
	e := FromHTTPStatus(400, "openai", map[string]any{
		"error": map[string]any{"message": "This model's maximum context length is exceeded"},
	}, "")
	assert.Equal(t, ContextLengthExceeded, e.Kind)

	e = FromHTTPStatus(400, "openai", map[string]any{
		"error": map[string]any{"message": "Your request was rejected by our content filter safety system"},
	}, "")
	assert.Equal(t, ContentFiltered, e.Kind)

	e = FromHTTPStatus(400, "openai", map[string]any{
		"error": map[string]any{"message": "You exceeded your current quota, please check your billing"},
	}, "")
	assert.Equal(t, QuotaExceeded, e.Kind)

	e = FromHTTPStatus(400, "openai", map[string]any{
		"error": map[string]any{"message": "invalid value for temperature"},
	}, "")
	assert.Equal(t, ValidationError, e.Kind)
}

func TestFromHTTPStatus_RetryAfter(t *testing.T) {
	e := FromHTTPStatus(429, "openai", map[string]any{
		"error": map[string]any{"retry_after": 2.0},
	}, "")
	assert.Equal(t, 2*time.Second, e.RetryAfter)

	e = FromHTTPStatus(429, "openai", nil, "5")
	assert.Equal(t, 5*time.Second, e.RetryAfter)
}

func TestCanRetry_ExcludesKeyErrors(t *testing.T) {
	e := New(KeyInvalid, "openai", "bad key")
	e.Retryable = true // a careless caller flips this
	assert.False(t, e.CanRetry())

	e = New(RequestFailed, "openai", "boom")
	e.Retryable = true
	assert.True(t, e.CanRetry())
}

func TestMarshalJSON_NoCredentialLeakage(t *testing.T) {
	e := Wrap(RequestFailed, "openai", "boom", errAPIKeySkAbc123())
	e.Retryable = true
	e.Details = map[string]any{"raw_key": "sk-supersecret"}
	e.RequestID = "req-1"

	b, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.NotContains(t, string(b), "supersecret")
	assert.Equal(t, "req-1", decoded["request_id"])
	assert.Equal(t, true, decoded["retryable"])
	assert.NotContains(t, decoded, "details")
	assert.NotContains(t, decoded, "cause")
}

func errAPIKeySkAbc123() error {
	return New(KeyInvalid, "openai", "key sk-should-never-appear-in-logs")
}

func TestRetryDelay_HonorsRetryAfter(t *testing.T) {
	e := New(RateLimited, "openai", "slow down")
	e.RetryAfter = 3 * time.Second
	d := e.RetryDelay(0, time.Second)
	assert.Equal(t, 3*time.Second, d)
}

func TestRetryDelay_ExponentialCappedAt60s(t *testing.T) {
	e := New(RequestFailed, "openai", "boom")
	d := e.RetryDelay(10, time.Second) // 2^10s would blow past the cap
	assert.LessOrEqual(t, d, 60*time.Second)
}
