package sse

import "encoding/json"

// Event is a decoded stream event. The concrete type is one of
// BlockStart, BlockDelta, BlockStop, MessageStop, or Unrecognized, so
// consumers switch exhaustively instead of probing loose JSON.
type Event interface {
	isEvent()
}

// BlockStart opens a content block at Index with the given block type
// (e.g. "thinking", "text", "tool_use").
type BlockStart struct {
	Index     int
	BlockType string
}

// BlockDelta carries an incremental text fragment for the block at Index.
type BlockDelta struct {
	Index int
	Text  string
}

// BlockStop closes the content block at Index.
type BlockStop struct {
	Index int
}

// MessageStop marks the end of the streamed message.
type MessageStop struct{}

// Unrecognized covers frames this pipeline doesn't extract from:
// message_start, ping, errors, and anything that fails to parse.
type Unrecognized struct {
	EventType string
}

func (BlockStart) isEvent()   {}
func (BlockDelta) isEvent()   {}
func (BlockStop) isEvent()    {}
func (MessageStop) isEvent()  {}
func (Unrecognized) isEvent() {}

// payload mirrors the fields of the provider's event JSON that the
// extraction pipeline needs. Everything else is ignored.
type payload struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock *struct {
		Type string `json:"type"`
	} `json:"content_block"`
	Delta *struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"delta"`
}

// Decode parses a frame's JSON payload into a typed event. A frame that
// fails to parse or doesn't match a known shape decodes to Unrecognized;
// Decode never fails, so a malformed frame can't interrupt forwarding.
func Decode(frame Frame) Event {
	var p payload
	if err := json.Unmarshal([]byte(frame.Data), &p); err != nil {
		return Unrecognized{EventType: frame.Event}
	}

	// The payload's own type field is authoritative; the event: line is
	// a fallback for servers that omit it.
	eventType := p.Type
	if eventType == "" {
		eventType = frame.Event
	}

	switch eventType {
	case "content_block_start":
		if p.ContentBlock == nil {
			return Unrecognized{EventType: eventType}
		}
		return BlockStart{Index: p.Index, BlockType: p.ContentBlock.Type}
	case "content_block_delta":
		if p.Delta == nil {
			return Unrecognized{EventType: eventType}
		}
		text := p.Delta.Thinking
		if text == "" {
			text = p.Delta.Text
		}
		return BlockDelta{Index: p.Index, Text: text}
	case "content_block_stop":
		return BlockStop{Index: p.Index}
	case "message_stop":
		return MessageStop{}
	default:
		return Unrecognized{EventType: eventType}
	}
}
