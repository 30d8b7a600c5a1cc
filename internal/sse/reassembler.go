// Package sse reconstructs server-sent events from arbitrarily chunked byte streams.
package sse

import (
	"bytes"
	"strings"
)

// Frame is one complete SSE event unit: an event name and its data payload.
// Multi-line data fields are joined with newlines per the SSE spec.
type Frame struct {
	Event string
	Data  string
}

// Reassembler accumulates raw byte chunks and yields complete frames.
// A frame is terminated by a blank line; chunk boundaries may fall
// anywhere, including mid-line or inside the delimiter itself.
type Reassembler struct {
	buf       []byte   // unconsumed tail without a trailing newline
	eventType string   // event name of the frame being assembled
	dataLines []string // data lines of the frame being assembled
	sawField  bool     // whether the pending frame has seen any field
}

// NewReassembler creates an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed appends a chunk and returns every frame it completes, in order.
// Incomplete trailing data is buffered for the next call. Bytes are
// never dropped or reordered.
func (r *Reassembler) Feed(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}
	r.buf = append(r.buf, chunk...)

	var frames []Frame
	for {
		idx := bytes.IndexByte(r.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(r.buf[:idx])
		r.buf = r.buf[idx+1:]
		line = strings.TrimSuffix(line, "\r")

		if frame, ok := r.consumeLine(line); ok {
			frames = append(frames, frame)
		}
	}

	// Release the backing array once fully consumed so long streams
	// don't pin the largest buffer ever seen.
	if len(r.buf) == 0 {
		r.buf = nil
	}

	return frames
}

// consumeLine processes one complete line. It returns a finished frame
// when the line is the blank-line terminator of a non-empty frame.
func (r *Reassembler) consumeLine(line string) (Frame, bool) {
	if line == "" {
		if len(r.dataLines) == 0 {
			// Delimiter with no data (e.g. doubled blank lines); nothing to emit
			r.reset()
			return Frame{}, false
		}
		frame := Frame{
			Event: r.eventType,
			Data:  strings.Join(r.dataLines, "\n"),
		}
		r.reset()
		return frame, true
	}

	switch {
	case strings.HasPrefix(line, "event:"):
		r.eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		r.sawField = true
	case strings.HasPrefix(line, "data:"):
		r.dataLines = append(r.dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		r.sawField = true
	case strings.HasPrefix(line, ":"):
		// Comment, ignore
	default:
		// Unknown field (id:, retry:, ...) - part of the frame but unused
		r.sawField = true
	}
	return Frame{}, false
}

// Close discards any buffered incomplete frame and reports whether
// data was discarded. Truncation is a condition, not an error: the raw
// bytes were already forwarded to the client.
func (r *Reassembler) Close() (truncated bool) {
	truncated = len(r.buf) > 0 || len(r.dataLines) > 0 || r.sawField
	r.buf = nil
	r.reset()
	return truncated
}

func (r *Reassembler) reset() {
	r.eventType = ""
	r.dataLines = nil
	r.sawField = false
}
