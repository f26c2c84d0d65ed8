package eventlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oriys/scalemq/internal/logging"
)

type fakeAppender struct {
	mu      sync.Mutex
	entries []*logging.EventLogEntry
}

func (f *fakeAppender) Append(_ context.Context, e *logging.EventLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAppender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func TestSinkFlushesOnTicker(t *testing.T) {
	fa := &fakeAppender{}
	s := NewSink(fa)
	s.flushEvery = 20 * time.Millisecond
	s.Start()
	defer s.Stop()

	s.Enqueue(&logging.EventLogEntry{SocketID: "a", EventType: "PIPE_ADD"})

	deadline := time.Now().Add(time.Second)
	for fa.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fa.count() == 0 {
		t.Fatal("expected entry to be flushed")
	}
}

func TestSinkFlushesOnStop(t *testing.T) {
	fa := &fakeAppender{}
	s := NewSink(fa)
	s.flushEvery = time.Hour
	s.Start()

	s.Enqueue(&logging.EventLogEntry{SocketID: "b", EventType: "PIPE_REM"})
	s.Stop()

	if fa.count() != 1 {
		t.Fatalf("expected 1 entry flushed on Stop, got %d", fa.count())
	}
}

func TestSinkDropsWhenQueueFull(t *testing.T) {
	fa := &fakeAppender{}
	s := NewSink(fa)
	// Don't Start the drain goroutine, so the queue fills up.
	for i := 0; i < defaultQueueDepth+10; i++ {
		s.Enqueue(&logging.EventLogEntry{SocketID: "c"})
	}
	if len(s.queue) != defaultQueueDepth {
		t.Fatalf("queue len = %d, want %d (overflow dropped)", len(s.queue), defaultQueueDepth)
	}
}
