package sse

import (
	"testing"
)

func feedAll(r *Reassembler, chunks ...string) []Frame {
	var frames []Frame
	for _, c := range chunks {
		frames = append(frames, r.Feed([]byte(c))...)
	}
	return frames
}

func TestFeedSingleFrame(t *testing.T) {
	r := NewReassembler()
	frames := feedAll(r, "event: content_block_start\ndata: {\"index\":0}\n\n")

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Event != "content_block_start" {
		t.Errorf("Event = %q, want %q", frames[0].Event, "content_block_start")
	}
	if frames[0].Data != `{"index":0}` {
		t.Errorf("Data = %q, want %q", frames[0].Data, `{"index":0}`)
	}
}

func TestFeedMultipleFramesOneChunk(t *testing.T) {
	r := NewReassembler()
	input := "event: a\ndata: {}\n\nevent: b\ndata: {}\n\nevent: c\ndata: {}\n\n"
	frames := feedAll(r, input)

	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, want := range []string{"a", "b", "c"} {
		if frames[i].Event != want {
			t.Errorf("frames[%d].Event = %q, want %q", i, frames[i].Event, want)
		}
	}
}

func TestFeedCRLFDelimiters(t *testing.T) {
	r := NewReassembler()
	frames := feedAll(r, "event: ping\r\ndata: {\"type\":\"ping\"}\r\n\r\n")

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Event != "ping" {
		t.Errorf("Event = %q, want %q", frames[0].Event, "ping")
	}
	if frames[0].Data != `{"type":"ping"}` {
		t.Errorf("Data = %q, want %q", frames[0].Data, `{"type":"ping"}`)
	}
}

func TestFeedMultiLineData(t *testing.T) {
	r := NewReassembler()
	frames := feedAll(r, "event: x\ndata: line1\ndata: line2\n\n")

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Data != "line1\nline2" {
		t.Errorf("Data = %q, want %q", frames[0].Data, "line1\nline2")
	}
}

func TestFeedIgnoresComments(t *testing.T) {
	r := NewReassembler()
	frames := feedAll(r, ": keepalive\n\nevent: x\ndata: {}\n\n")

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Event != "x" {
		t.Errorf("Event = %q, want %q", frames[0].Event, "x")
	}
}

func TestFeedDataOnlyFrame(t *testing.T) {
	r := NewReassembler()
	frames := feedAll(r, "data: {\"type\":\"message_stop\"}\n\n")

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Event != "" {
		t.Errorf("Event = %q, want empty", frames[0].Event)
	}
}

// Splitting a stream at every possible byte boundary must yield
// identical frames regardless of where the boundary falls.
func TestFeedChunkBoundaryInvariance(t *testing.T) {
	input := "event: content_block_start\r\ndata: {\"type\":\"content_block_start\",\"index\":0}\r\n\r\n" +
		"event: content_block_delta\ndata: {\"delta\":{\"thinking\":\"hm\"}}\n\n" +
		"event: content_block_stop\ndata: {\"index\":0}\n\n"

	whole := NewReassembler()
	want := feedAll(whole, input)
	if len(want) != 3 {
		t.Fatalf("baseline parse got %d frames, want 3", len(want))
	}

	for split := 1; split < len(input); split++ {
		r := NewReassembler()
		got := feedAll(r, input[:split], input[split:])
		if len(got) != len(want) {
			t.Fatalf("split at %d: got %d frames, want %d", split, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("split at %d: frames[%d] = %+v, want %+v", split, i, got[i], want[i])
			}
		}
	}
}

func TestFeedByteAtATime(t *testing.T) {
	input := "event: e\ndata: {\"a\":1}\n\nevent: f\ndata: {\"b\":2}\n\n"
	r := NewReassembler()
	var frames []Frame
	for i := 0; i < len(input); i++ {
		frames = append(frames, r.Feed([]byte{input[i]})...)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Data != `{"a":1}` || frames[1].Data != `{"b":2}` {
		t.Errorf("unexpected frame data: %+v", frames)
	}
}

func TestCloseReportsTruncation(t *testing.T) {
	r := NewReassembler()
	r.Feed([]byte("event: x\ndata: {\"incompl"))

	if truncated := r.Close(); !truncated {
		t.Error("Close() = false, want true for buffered partial frame")
	}
}

func TestCloseCleanStream(t *testing.T) {
	r := NewReassembler()
	r.Feed([]byte("event: x\ndata: {}\n\n"))

	if truncated := r.Close(); truncated {
		t.Error("Close() = true, want false after complete frame")
	}
}

func TestFeedEmptyChunk(t *testing.T) {
	r := NewReassembler()
	if frames := r.Feed(nil); frames != nil {
		t.Errorf("Feed(nil) = %v, want nil", frames)
	}
}
