package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// NDJSONDecoder decodes a newline-delimited JSON stream into raw JSON
// messages, one per non-empty line. A line that fails to parse as JSON is
// silently skipped rather than surfaced as an error — some providers emit
// keep-alive blank lines or partial trailers on this transport.
type NDJSONDecoder struct {
	scanner *bufio.Scanner
	closer  io.Closer
	closed  bool
}

// NewNDJSONDecoder wraps r. If r also implements io.Closer, Close
// releases it.
func NewNDJSONDecoder(r io.Reader) *NDJSONDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	d := &NDJSONDecoder{scanner: scanner}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}
	return d
}

// Close releases the underlying reader; see Decoder.Close.
func (d *NDJSONDecoder) Close() error {
	d.closed = true
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// Next returns the next line that parses as valid JSON. ok is false once
// the stream is exhausted or Close has been called.
func (d *NDJSONDecoder) Next() (json.RawMessage, bool, error) {
	for {
		if d.closed {
			return nil, false, nil
		}
		if !d.scanner.Scan() {
			return nil, false, d.scanner.Err()
		}
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		return raw, true, nil
	}
}
