package journal

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func entry(id string) *LogEntry {
	return &LogEntry{Spindle: testSpindle(id, "x"), CapturedAt: time.Now()}
}

func TestQueuePushPopFIFO(t *testing.T) {
	q := newEntryQueue(10)

	for i := 0; i < 5; i++ {
		if dropped := q.Push(entry(fmt.Sprintf("e-%d", i))); dropped {
			t.Fatalf("Push(%d) dropped with queue not full", i)
		}
	}
	if q.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", q.Len())
	}

	batch := q.PopBatch(3)
	if len(batch) != 3 {
		t.Fatalf("PopBatch(3) returned %d entries", len(batch))
	}
	for i, e := range batch {
		want := fmt.Sprintf("e-%d", i)
		if e.Spindle.ID != want {
			t.Errorf("batch[%d].ID = %q, want %q", i, e.Spindle.ID, want)
		}
	}

	rest := q.PopBatch(100)
	if len(rest) != 2 {
		t.Fatalf("PopBatch(100) returned %d entries, want 2", len(rest))
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after full drain, want 0", q.Len())
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := newEntryQueue(2)

	q.Push(entry("a"))
	q.Push(entry("b"))

	if dropped := q.Push(entry("c")); !dropped {
		t.Error("Push on full queue did not report a drop")
	}
	if q.Drops() != 1 {
		t.Errorf("Drops() = %d, want 1", q.Drops())
	}

	// Oldest entries survive; the newest was the one dropped
	batch := q.PopBatch(10)
	if len(batch) != 2 || batch[0].Spindle.ID != "a" || batch[1].Spindle.ID != "b" {
		t.Errorf("unexpected surviving entries: %+v", batch)
	}
}

func TestQueueDropsAfterClose(t *testing.T) {
	q := newEntryQueue(10)
	q.Close()

	if dropped := q.Push(entry("late")); !dropped {
		t.Error("Push after Close did not report a drop")
	}
	if q.Drops() != 1 {
		t.Errorf("Drops() = %d, want 1", q.Drops())
	}
}

func TestQueueWaitWakesOnPush(t *testing.T) {
	q := newEntryQueue(10)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(entry("wake"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if alive := q.Wait(ctx); !alive {
		t.Fatal("Wait() = false, want true after push")
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func TestQueueWaitReturnsOnClose(t *testing.T) {
	q := newEntryQueue(10)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if alive := q.Wait(ctx); alive {
		t.Fatal("Wait() = true, want false after Close")
	}
}

func TestQueueWaitReturnsOnContextCancel(t *testing.T) {
	q := newEntryQueue(10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if alive := q.Wait(ctx); alive {
		t.Fatal("Wait() = true, want false with cancelled context")
	}
}

func TestQueueDefaultCapacity(t *testing.T) {
	q := newEntryQueue(0)
	if q.maxSize != 4096 {
		t.Errorf("maxSize = %d, want 4096 default", q.maxSize)
	}
}
