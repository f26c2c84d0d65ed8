package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/scalemq/internal/logging"
)

// appender is the subset of *Store a Sink needs — narrow enough to
// fake in tests without a live Postgres connection.
type appender interface {
	Append(ctx context.Context, e *logging.EventLogEntry) error
}

// Sink buffers EventLogEntry records in a channel and flushes them to a
// Store in the background, so the observability submit/deliver path
// never blocks on a Postgres round trip.
//
// Grounded on the teacher's internal/asyncqueue.WorkerPool Start/Stop/
// sync.WaitGroup shutdown discipline, narrowed to one drain goroutine
// since event-log writes are append-only and need no dispatch fan-out.
type Sink struct {
	store      appender
	queue      chan *logging.EventLogEntry
	flushEvery time.Duration
	batchSize  int

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

const (
	defaultQueueDepth = 1024
	defaultFlushEvery = time.Second
	defaultSinkBatch  = 64
)

// NewSink creates a Sink writing through to store.
func NewSink(store appender) *Sink {
	return &Sink{
		store:      store,
		queue:      make(chan *logging.EventLogEntry, defaultQueueDepth),
		flushEvery: defaultFlushEvery,
		batchSize:  defaultSinkBatch,
	}
}

// Start launches the background drain goroutine. Safe to call once;
// subsequent calls are no-ops.
func (s *Sink) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.drain()
}

// Stop flushes any remaining buffered entries and stops the drain
// goroutine.
func (s *Sink) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

// Enqueue submits an entry for asynchronous persistence. If the
// internal queue is full the entry is dropped rather than applying
// backpressure to the caller — the event log is best-effort auditing,
// never a delivery-path dependency.
func (s *Sink) Enqueue(e *logging.EventLogEntry) {
	select {
	case s.queue <- e:
	default:
	}
}

func (s *Sink) drain() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	batch := make([]*logging.EventLogEntry, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		for _, e := range batch {
			_ = s.store.Append(ctx, e)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case <-s.stopCh:
			for {
				select {
				case e := <-s.queue:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-s.queue:
			batch = append(batch, e)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
