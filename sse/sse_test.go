package sse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_SingleEvent(t *testing.T) {
	d := NewDecoder(strings.NewReader("event: message\nid: 1\ndata: hello\n\n"))

	ev, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "message", ev.EventName)
	assert.Equal(t, "1", ev.ID)
	assert.Equal(t, "hello", ev.Data)

	_, ok, err = d.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecoder_MultiLineDataConcatenatedWithNewline(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: line one\ndata: line two\n\n"))

	ev, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "line one\nline two", ev.Data)
}

func TestDecoder_FlushesTrailingCompleteEventOnEOF(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: trailing\n"))

	ev, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "trailing", ev.Data)

	_, ok, err = d.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecoder_SkipsEmptyEvents(t *testing.T) {
	d := NewDecoder(strings.NewReader("\n\ndata: real\n\n"))

	ev, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "real", ev.Data)
}

func TestDecoder_MultipleEventsInSequence(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: first\n\ndata: second\n\n"))

	ev1, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", ev1.Data)

	ev2, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", ev2.Data)

	_, ok, _ = d.Next()
	assert.False(t, ok)
}

func TestDecoder_CloseTerminatesSequence(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: first\n\ndata: second\n\n"))
	require.NoError(t, d.Close())

	_, ok, err := d.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNDJSONDecoder_SkipsInvalidLines(t *testing.T) {
	body := `{"a":1}
not json
{"a":2}
`
	d := NewNDJSONDecoder(strings.NewReader(body))

	raw1, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(raw1))

	raw2, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":2}`, string(raw2))

	_, ok, err = d.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJSONStream_DropsDoneSentinel(t *testing.T) {
	body := "data: {\"delta\":\"hi\"}\n\ndata: [DONE]\n\n"
	s := NewJSONStream(strings.NewReader(body))

	raw, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"delta":"hi"}`, string(raw))

	_, ok, err = s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJSONStream_SkipsMalformedJSON(t *testing.T) {
	body := "data: not-json\n\ndata: {\"ok\":true}\n\n"
	s := NewJSONStream(strings.NewReader(body))

	raw, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
}
