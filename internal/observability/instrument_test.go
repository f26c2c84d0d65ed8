package observability

import (
	"context"
	"testing"

	"github.com/oriys/scalemq/internal/eventbus"
)

func TestSubmitAndWaitCompletesWithListeners(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	fired := false
	bus.AddListener(eventbus.CanSend, func(e *eventbus.Event) { fired = true })

	e := eventbus.NewEvent(bus, eventbus.CanSend)
	e.SocketID = "sock-1"

	SubmitAndWait(context.Background(), bus, e)

	if !fired {
		t.Fatal("expected listener to have run before SubmitAndWait returned")
	}
	if !e.Done() {
		t.Fatal("expected event to be done after SubmitAndWait")
	}
}

func TestSubmitAndWaitNoListeners(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	e := eventbus.NewEvent(bus, eventbus.SocketError)
	SubmitAndWait(context.Background(), bus, e)

	if !e.Done() {
		t.Fatal("expected event to be done with no listeners registered")
	}
}
