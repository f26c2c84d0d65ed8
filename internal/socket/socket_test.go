package socket

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/oriys/scalemq/internal/eventbus"
	"github.com/oriys/scalemq/internal/msgqueue"
)

type strMsg string

func (m strMsg) Len() int { return len(m) }

func TestNewSocketWiresReadiness(t *testing.T) {
	s, err := New(2, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	var recvFired int32
	s.Bus.AddListener(eventbus.CanRecv, func(e *eventbus.Event) {
		atomic.AddInt32(&recvFired, 1)
	})

	if err := s.Recv.Put(strMsg("x"), msgqueue.NeverDeadline(), nil); err != nil {
		t.Fatalf("put: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&recvFired) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&recvFired) == 0 {
		t.Fatal("expected CanRecv to fire after Put into Recv queue")
	}
}

func TestSocketLifecycleEvents(t *testing.T) {
	s, err := New(1, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	var got eventbus.EventType
	s.Bus.AddListener(eventbus.PipeAdd|eventbus.PipeRem|eventbus.EndpointAdd|eventbus.EndpointRem, func(e *eventbus.Event) {
		got = e.Type
	})

	ep := Endpoint{ID: NewID(), Address: "inproc://test"}
	e := s.AddEndpoint(ep)
	s.Bus.Wait(e)
	if got != eventbus.EndpointAdd {
		t.Fatalf("got %v, want EndpointAdd", got)
	}

	p := Pipe{ID: NewID(), EndpointID: ep.ID}
	e2 := s.AddPipe(p)
	s.Bus.Wait(e2)
	if got != eventbus.PipeAdd {
		t.Fatalf("got %v, want PipeAdd", got)
	}

	e3 := s.RemovePipe(p)
	s.Bus.Wait(e3)
	if got != eventbus.PipeRem {
		t.Fatalf("got %v, want PipeRem", got)
	}
}
