package readiness

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/oriys/scalemq/internal/eventbus"
	"github.com/oriys/scalemq/internal/msgqueue"
)

type strMsg string

func (m strMsg) Len() int { return len(m) }

// S5: readiness fires exactly once with CAN_RECV before a subsequent Get
// removes the message.
func TestRecvReadinessFiresBeforeGet(t *testing.T) {
	mq, err := msgqueue.New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mq.Fini()

	bus := eventbus.New()
	defer bus.Close()

	var fired int32
	bus.AddListener(eventbus.CanRecv, func(e *eventbus.Event) {
		atomic.AddInt32(&fired, 1)
	})
	WireRecv(bus, mq, "sock-1")

	if err := mq.Put(strMsg("hello"), msgqueue.NeverDeadline(), nil); err != nil {
		t.Fatalf("put: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&fired) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatalf("fired = %d, want exactly 1", fired)
	}

	m, err := mq.Get(msgqueue.DontBlock(), nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m != strMsg("hello") {
		t.Fatalf("got %v, want hello", m)
	}
}

// A notifier registered on an already-ready queue fires on the next
// put/get, per the level-triggered contract.
func TestSendReadinessLevelTriggered(t *testing.T) {
	mq, err := msgqueue.New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mq.Fini()

	bus := eventbus.New()
	defer bus.Close()

	var fired int32
	bus.AddListener(eventbus.CanSend, func(e *eventbus.Event) {
		atomic.AddInt32(&fired, 1)
	})
	WireSend(bus, mq, "sock-2")

	if err := mq.Put(strMsg("a"), msgqueue.NeverDeadline(), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := mq.Get(msgqueue.NeverDeadline(), nil); err != nil {
		t.Fatalf("get: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&fired) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&fired) == 0 {
		t.Fatal("expected CanSend to fire once the queue became writable again")
	}
}

func TestNoopFanout(t *testing.T) {
	var f NoopFanout
	if err := f.Publish(nil, "q", msgqueue.CanPut); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ch, cancel, err := f.Subscribe(nil, "q")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	select {
	case <-ch:
		t.Fatal("noop fanout channel should never deliver")
	default:
	}
}
