package journal

import (
	"context"
	"sync"
	"sync/atomic"
)

// entryQueue is a bounded FIFO queue decoupling spindle capture from
// file writes. A full queue drops the newest entry and counts it; the
// forwarding path is never back-pressured by disk.
type entryQueue struct {
	mu      sync.Mutex
	items   []*LogEntry
	maxSize int
	drops   uint64

	notifyCh chan struct{}
	closeCh  chan struct{}
	closed   bool
}

func newEntryQueue(maxSize int) *entryQueue {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &entryQueue{
		items:    make([]*LogEntry, 0, 64),
		maxSize:  maxSize,
		notifyCh: make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
	}
}

// Push adds an entry. Returns true if the entry was dropped because the
// queue was full or closed.
func (q *entryQueue) Push(e *LogEntry) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.items) >= q.maxSize {
		atomic.AddUint64(&q.drops, 1)
		return true
	}

	q.items = append(q.items, e)

	select {
	case q.notifyCh <- struct{}{}:
	default:
	}

	return false
}

// PopBatch removes and returns up to n entries in FIFO order.
func (q *entryQueue) PopBatch(n int) []*LogEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}

	batch := make([]*LogEntry, n)
	copy(batch, q.items[:n])
	remaining := copy(q.items, q.items[n:])
	for i := remaining; i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = q.items[:remaining]

	return batch
}

// Len returns the current queue size.
func (q *entryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drops returns the number of entries dropped so far.
func (q *entryQueue) Drops() uint64 {
	return atomic.LoadUint64(&q.drops)
}

// Close closes the queue. Subsequent pushes are dropped.
func (q *entryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.closeCh)
	}
}

// Wait blocks until an entry arrives, the queue closes, or the context
// is cancelled. Returns true only for new entries.
func (q *entryQueue) Wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-q.closeCh:
		return false
	case <-q.notifyCh:
		return true
	}
}
