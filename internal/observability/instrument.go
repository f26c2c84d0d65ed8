package observability

import (
	"context"
	"time"

	"github.com/oriys/scalemq/internal/eventbus"
	"github.com/oriys/scalemq/internal/metrics"
)

// SubmitAndWait submits e to bus, spans the full submit-to-done round
// trip, and blocks until delivery completes — the one place
// SPEC_FULL's "span per Event submit->done round trip" lands, without
// teaching internal/eventbus itself about tracing.
func SubmitAndWait(ctx context.Context, bus *eventbus.Bus, e *eventbus.Event) {
	_, span := StartSpan(ctx, "eventbus.deliver",
		AttrSocketID.String(e.SocketID),
		AttrEventType.String(eventTypeName(e.Type)),
	)
	defer span.End()

	start := time.Now()
	bus.Submit(e)
	bus.Wait(e)
	d := time.Since(start)

	span.SetAttributes(AttrDurationMs.Int64(d.Milliseconds()), AttrListenerN.Int(e.ListenerCount))
	SetSpanOK(span)
	metrics.RecordEventDelivery(eventTypeName(e.Type), d, e.ListenerCount)
}

func eventTypeName(t eventbus.EventType) string {
	switch t {
	case eventbus.CanSend:
		return "can_send"
	case eventbus.CanRecv:
		return "can_recv"
	case eventbus.PipeAdd:
		return "pipe_add"
	case eventbus.PipeRem:
		return "pipe_rem"
	case eventbus.EndpointAdd:
		return "endpoint_add"
	case eventbus.EndpointRem:
		return "endpoint_rem"
	case eventbus.SocketError:
		return "socket_error"
	default:
		return "unknown"
	}
}
