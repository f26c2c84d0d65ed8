// Package readiness synthesises CAN_SEND/CAN_RECV events from a
// MsgQueue's level-triggered CAN_PUT/CAN_GET kicks and hands them to a
// Socket Event Bus — the translation §4.3 describes the socket layer as
// providing to the per-MQ notifier worker. The per-MQ worker loop itself
// lives inside internal/msgqueue (notifyWorker); this package is the
// callback it invokes.
package readiness

import (
	"github.com/oriys/scalemq/internal/eventbus"
	"github.com/oriys/scalemq/internal/msgqueue"
)

// WireSend registers mq's CAN_PUT readiness with bus: every time mq
// becomes writable (or stays writable across a put that left room), a
// CanSend event is submitted to bus. socketID is stamped onto each
// synthesised event for listener context.
func WireSend(bus *eventbus.Bus, mq *msgqueue.MsgQueue, socketID string) {
	mq.NotifyCanPut(func(_ *msgqueue.MsgQueue, _ any) {
		e := eventbus.NewEvent(bus, eventbus.CanSend)
		e.SocketID = socketID
		bus.Submit(e)
	}, nil)
}

// WireRecv registers mq's CAN_GET readiness with bus: every time mq
// becomes readable, a CanRecv event is submitted to bus.
func WireRecv(bus *eventbus.Bus, mq *msgqueue.MsgQueue, socketID string) {
	mq.NotifyCanGet(func(_ *msgqueue.MsgQueue, _ any) {
		e := eventbus.NewEvent(bus, eventbus.CanRecv)
		e.SocketID = socketID
		bus.Submit(e)
	}, nil)
}
