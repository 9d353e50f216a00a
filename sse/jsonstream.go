package sse

import (
	"encoding/json"
	"io"
)

// JSONStream is the higher-level decoder most provider adapters actually
// consume: it wraps an SSE Decoder, parses each event's Data field as
// JSON, and transparently drops the "[DONE]" sentinel OpenAI-compatible
// providers send as their last event.
type JSONStream struct {
	dec *Decoder
}

// NewJSONStream wraps r as an SSE byte stream.
func NewJSONStream(r io.Reader) *JSONStream {
	return &JSONStream{dec: NewDecoder(r)}
}

// Close cancels the underlying decode.
func (s *JSONStream) Close() error { return s.dec.Close() }

// Next returns the next event whose data parses as JSON, skipping
// sentinel and malformed events. ok is false once the stream ends or has
// been closed.
func (s *JSONStream) Next() (json.RawMessage, bool, error) {
	for {
		ev, ok, err := s.dec.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if ev.Data == "" || ev.Data == "[DONE]" {
			continue
		}
		if !json.Valid([]byte(ev.Data)) {
			continue
		}
		raw := make(json.RawMessage, len(ev.Data))
		copy(raw, ev.Data)
		return raw, true, nil
	}
}
