// Package journal records completed spindles as append-only JSON Lines.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/HakAl/spindle/internal/config"
	"github.com/HakAl/spindle/internal/store"
)

// previewRunes bounds the console preview length.
const previewRunes = 80

// writeBatchSize is how many entries the writer drains per wakeup.
const writeBatchSize = 64

// LogEntry is the persistence envelope around a spindle. CapturedAt is
// the append time, which may lag the spindle's own completion under load.
type LogEntry struct {
	Spindle    *store.Spindle `json:"spindle"`
	CapturedAt time.Time      `json:"capturedAt"`
}

// Journal appends completed spindles to a JSONL file through a bounded
// queue and a single writer goroutine. Log never blocks the caller and
// a write failure never propagates back into the forwarding loop.
type Journal struct {
	path    string
	file    *os.File
	w       *bufio.Writer
	queue   *entryQueue
	logger  *slog.Logger
	preview io.Writer // nil disables console previews

	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
}

// New opens (or creates) the journal file and starts the writer.
func New(cfg *config.JournalConfig, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening journal file: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Journal{
		path:   cfg.Path,
		file:   file,
		w:      bufio.NewWriter(file),
		queue:  newEntryQueue(cfg.QueueMaxSize),
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if cfg.Preview {
		j.preview = os.Stderr
	}

	go j.writeLoop(ctx)

	return j, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Drops returns the number of entries dropped under backpressure.
func (j *Journal) Drops() uint64 {
	return j.queue.Drops()
}

// Log enqueues a spindle for appending. Non-blocking: if the queue is
// full the entry is dropped and counted, never retried inline.
func (j *Journal) Log(sp *store.Spindle) {
	entry := &LogEntry{
		Spindle:    sp,
		CapturedAt: time.Now(),
	}
	if j.queue.Push(entry) {
		j.logger.Warn("journal queue full, dropping spindle",
			"spindle_id", sp.ID, "drops_total", j.queue.Drops())
		return
	}

	if j.preview != nil {
		fmt.Fprintf(j.preview, "  spindle %s: %s\n", sp.ID, previewOf(sp.Content))
	}
}

// writeLoop drains the queue into the file. Failed writes are logged
// and dropped.
func (j *Journal) writeLoop(ctx context.Context) {
	defer close(j.done)

	for {
		alive := j.queue.Wait(ctx)
		j.drain()
		if !alive {
			// Queue closed or context cancelled; one final drain above
			// picked up anything racing with shutdown.
			return
		}
	}
}

func (j *Journal) drain() {
	for {
		batch := j.queue.PopBatch(writeBatchSize)
		if len(batch) == 0 {
			break
		}
		for _, entry := range batch {
			line, err := json.Marshal(entry)
			if err != nil {
				j.logger.Error("failed to marshal journal entry", "spindle_id", entry.Spindle.ID, "error", err)
				continue
			}
			if _, err := j.w.Write(append(line, '\n')); err != nil {
				j.logger.Error("failed to append journal entry", "spindle_id", entry.Spindle.ID, "error", err)
			}
		}
		if err := j.w.Flush(); err != nil {
			j.logger.Error("failed to flush journal", "error", err)
		}
	}
}

// Close drains pending entries, flushes, and closes the file. Safe to
// call more than once.
func (j *Journal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		j.queue.Close()
		j.cancel()
		<-j.done

		j.drain()
		if ferr := j.w.Flush(); ferr != nil {
			err = fmt.Errorf("flushing journal: %w", ferr)
		}
		if cerr := j.file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing journal: %w", cerr)
		}
	})
	return err
}

// previewOf returns a single-line truncated preview of spindle content.
func previewOf(content string) string {
	runes := []rune(content)
	if len(runes) > previewRunes {
		runes = runes[:previewRunes]
	}
	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		if r == '\n' || r == '\r' {
			r = ' '
		}
		out = append(out, r)
	}
	if len([]rune(content)) > previewRunes {
		return string(out) + "..."
	}
	return string(out)
}
