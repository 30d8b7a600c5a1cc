// Package capture reassembles extended-thinking segments from proxied streams.
package capture

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/HakAl/spindle/internal/sse"
	"github.com/HakAl/spindle/internal/store"
)

// blockTypeThinking is the content-block type that produces spindles.
const blockTypeThinking = "thinking"

// block is the per-index accumulator: open content blocks collect delta
// fragments until their stop event seals them.
type block struct {
	blockType string
	content   strings.Builder
	startedAt time.Time
	sealed    bool
	id        string
}

// Assembler consumes one connection's response stream and emits a
// Spindle for every completed thinking block. State is scoped to a
// single proxied request; nothing is shared across connections.
type Assembler struct {
	connectionID string
	sessionID    *string
	logger       *slog.Logger

	reassembler *sse.Reassembler
	blocks      map[int]*block
	seq         int
}

// NewAssembler creates an Assembler for a single proxied request.
// sessionID may be nil when the caller supplied no correlation header.
func NewAssembler(connectionID string, sessionID *string, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		connectionID: connectionID,
		sessionID:    sessionID,
		logger:       logger,
		reassembler:  sse.NewReassembler(),
		blocks:       make(map[int]*block),
	}
}

// ProcessChunk feeds one raw chunk through the extraction pipeline.
// The returned forward slice is always the identical input: extraction
// never transforms what the client receives. sealed lists the spindles
// completed by this chunk, in completion order.
func (a *Assembler) ProcessChunk(chunk []byte) (forward []byte, sealed []*store.Spindle) {
	for _, frame := range a.reassembler.Feed(chunk) {
		if sp := a.handleEvent(sse.Decode(frame)); sp != nil {
			sealed = append(sealed, sp)
		}
	}
	return chunk, sealed
}

// handleEvent advances the per-block state machine. Malformed or
// out-of-order sequences are recovered defensively; nothing here may
// fail the forwarding path.
func (a *Assembler) handleEvent(ev sse.Event) *store.Spindle {
	switch e := ev.(type) {
	case sse.BlockStart:
		if existing, ok := a.blocks[e.Index]; ok && !existing.sealed {
			a.logger.Warn("duplicate block start, overwriting",
				"connection_id", a.connectionID, "index", e.Index, "type", e.BlockType)
		}
		a.seq++
		a.blocks[e.Index] = &block{
			blockType: e.BlockType,
			startedAt: time.Now(),
			id:        a.spindleID(e.Index),
		}

	case sse.BlockDelta:
		b, ok := a.blocks[e.Index]
		if !ok || b.sealed {
			// Delta before start: open retroactively so no text is lost.
			// The block type stays unknown until a start or stop arrives.
			a.logger.Warn("delta without open block, opening retroactively",
				"connection_id", a.connectionID, "index", e.Index)
			a.seq++
			b = &block{
				startedAt: time.Now(),
				id:        a.spindleID(e.Index),
			}
			a.blocks[e.Index] = b
		}
		b.content.WriteString(e.Text)

	case sse.BlockStop:
		b, ok := a.blocks[e.Index]
		if !ok {
			a.logger.Warn("stop without matching start, ignoring",
				"connection_id", a.connectionID, "index", e.Index)
			return nil
		}
		if b.sealed {
			return nil
		}
		b.sealed = true
		if b.blockType == blockTypeThinking {
			return a.buildSpindle(e.Index, b, false)
		}
		if b.blockType == "" && b.content.Len() > 0 {
			// Retroactively opened block: the start event (and its type)
			// never arrived. Flush the observed text flagged truncated
			// rather than lose it.
			return a.buildSpindle(e.Index, b, true)
		}

	case sse.MessageStop:
		// Blocks left open at message end are flushed by Finish; the
		// event itself needs no handling here.

	case sse.Unrecognized:
		a.logger.Debug("unrecognized stream event",
			"connection_id", a.connectionID, "event_type", e.EventType)
	}
	return nil
}

// Finish seals the stream. Any thinking block still open is flushed as
// a partial spindle flagged truncated rather than silently dropped.
// The assembler must not be fed after Finish.
func (a *Assembler) Finish() []*store.Spindle {
	if truncated := a.reassembler.Close(); truncated {
		a.logger.Debug("stream ended mid-frame, trailing bytes discarded",
			"connection_id", a.connectionID)
	}

	var indexes []int
	for idx, b := range a.blocks {
		if b.sealed {
			continue
		}
		if b.blockType == blockTypeThinking || (b.blockType == "" && b.content.Len() > 0) {
			indexes = append(indexes, idx)
		}
	}
	sort.Ints(indexes)

	var flushed []*store.Spindle
	for _, idx := range indexes {
		b := a.blocks[idx]
		b.sealed = true
		a.logger.Warn("stream ended with thinking block open, flushing partial",
			"connection_id", a.connectionID, "index", idx)
		flushed = append(flushed, a.buildSpindle(idx, b, true))
	}
	return flushed
}

// buildSpindle seals a block's accumulated content into an immutable record.
func (a *Assembler) buildSpindle(index int, b *block, truncated bool) *store.Spindle {
	return &store.Spindle{
		ID:           b.id,
		SessionID:    a.sessionID,
		ConnectionID: a.connectionID,
		BlockIndex:   index,
		Content:      b.content.String(),
		StartedAt:    b.startedAt,
		CompletedAt:  time.Now(),
		Truncated:    truncated,
	}
}

// spindleID builds the id assigned at block-start time.
func (a *Assembler) spindleID(index int) string {
	return fmt.Sprintf("%s-%d-%d", a.connectionID, index, a.seq)
}
