package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// S6 / P6: wait(E) only returns after every matching listener for E has
// returned.
func TestWaitCompletesAfterAllListeners(t *testing.T) {
	b := New()
	defer b.Close()

	var n int32
	const listeners = 5
	release := make(chan struct{})
	for i := 0; i < listeners; i++ {
		b.AddListener(CanRecv, func(e *Event) {
			<-release
			atomic.AddInt32(&n, 1)
		})
	}

	e := NewEvent(b, CanRecv)
	b.Submit(e)

	done := make(chan struct{})
	go func() {
		b.Wait(e)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before listeners ran")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return within 1s of listeners completing")
	}

	if got := atomic.LoadInt32(&n); got != listeners {
		t.Fatalf("ran listeners = %d, want %d", got, listeners)
	}
	if !e.Done() {
		t.Fatal("Done() = false after Wait returned")
	}
	if e.ListenerCount != listeners {
		t.Fatalf("ListenerCount = %d, want %d", e.ListenerCount, listeners)
	}
}

// P5: every listener with matching mask is invoked exactly once before
// E.done is set; non-matching listeners are never invoked.
func TestListenerMaskFiltering(t *testing.T) {
	b := New()
	defer b.Close()

	var sendCalls, recvCalls int32
	b.AddListener(CanSend, func(e *Event) { atomic.AddInt32(&sendCalls, 1) })
	b.AddListener(CanRecv, func(e *Event) { atomic.AddInt32(&recvCalls, 1) })
	b.AddListener(CanSend|CanRecv, func(e *Event) {
		if e.Type == CanSend {
			atomic.AddInt32(&sendCalls, 1)
		} else {
			atomic.AddInt32(&recvCalls, 1)
		}
	})

	e := NewEvent(b, CanSend)
	b.Submit(e)
	b.Wait(e)

	if sendCalls != 2 {
		t.Fatalf("sendCalls = %d, want 2", sendCalls)
	}
	if recvCalls != 0 {
		t.Fatalf("recvCalls = %d, want 0", recvCalls)
	}
}

// Submission order to one bus equals delivery order.
func TestDeliveryOrderMatchesSubmissionOrder(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	var order []EventType
	b.AddListener(PipeAdd|PipeRem|EndpointAdd, func(e *Event) {
		mu.Lock()
		order = append(order, e.Type)
		mu.Unlock()
	})

	events := []*Event{
		NewEvent(b, PipeAdd),
		NewEvent(b, EndpointAdd),
		NewEvent(b, PipeRem),
	}
	for _, e := range events {
		b.Submit(e)
	}
	for _, e := range events {
		b.Wait(e)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []EventType{PipeAdd, EndpointAdd, PipeRem}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// With no listeners registered, Submit short-circuits: the event is
// immediately done and never reaches the worker's queue.
func TestSubmitShortCircuitsWithNoListeners(t *testing.T) {
	b := New()
	defer b.Close()

	e := NewEvent(b, SocketError)
	b.Submit(e)
	if !e.Done() {
		t.Fatal("expected Done() immediately with no listeners")
	}
	b.Wait(e) // must return instantly, not block
}

// Re-submitting an already-pending event is idempotent.
func TestResubmitWhilePendingIsIdempotent(t *testing.T) {
	b := New()
	defer b.Close()

	release := make(chan struct{})
	var calls int32
	b.AddListener(CanSend, func(e *Event) {
		<-release
		atomic.AddInt32(&calls, 1)
	})

	e := NewEvent(b, CanSend)
	b.Submit(e)
	b.Submit(e) // while pending: must not duplicate the queue entry
	close(release)
	b.Wait(e)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
