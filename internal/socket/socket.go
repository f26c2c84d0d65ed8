// Package socket provides the minimal external-interface surface
// spec.md §6 names: identity objects the core's MsgQueue/EventBus wire
// into, deliberately without option tables or protocol state machinery
// (spec.md's explicit Non-goal). Grounded on original_source's
// src/core/event.h nng_sock field list (s_mx, s_notify_mx, s_events,
// s_notify, s_uwq, s_urq, s_id, s_closing), kept intentionally thin.
package socket

import (
	"github.com/google/uuid"

	"github.com/oriys/scalemq/internal/eventbus"
	"github.com/oriys/scalemq/internal/msgqueue"
	"github.com/oriys/scalemq/internal/readiness"
)

// Socket is the minimal send/recv/event-bus triple a protocol or
// transport layer is wired against. It owns its Bus, send MQ, and recv
// MQ exclusively (per spec.md's ownership rules in §3).
type Socket struct {
	ID ID

	Send *msgqueue.MsgQueue // s_uwq: user write queue
	Recv *msgqueue.MsgQueue // s_urq: user read queue

	Bus *eventbus.Bus
}

// ID identifies a socket for event/listener bookkeeping.
type ID string

// NewID generates a fresh socket identity.
func NewID() ID { return ID(uuid.NewString()) }

// New creates a Socket with bounded send/recv queues of the given
// capacities and wires their readiness kicks into a fresh event bus as
// CAN_SEND/CAN_RECV events.
func New(sendCap, recvCap int) (*Socket, error) {
	send, err := msgqueue.New(sendCap)
	if err != nil {
		return nil, err
	}
	recv, err := msgqueue.New(recvCap)
	if err != nil {
		send.Fini()
		return nil, err
	}

	s := &Socket{
		ID:   NewID(),
		Send: send,
		Recv: recv,
		Bus:  eventbus.New(),
	}

	readiness.WireSend(s.Bus, s.Send, string(s.ID))
	readiness.WireRecv(s.Bus, s.Recv, string(s.ID))

	return s, nil
}

// Close tears down both queues and the event bus. Pending endpoint/pipe
// events already delivered are unaffected; any still queued are
// abandoned, matching eventbus.Bus.Close.
func (s *Socket) Close() {
	s.Send.Fini()
	s.Recv.Fini()
	s.Bus.Close()
}

// Endpoint is an identity-only record of a dialer or listener attached to
// a socket — no dial/listen machinery or option tables, per spec.md's
// Non-goal.
type Endpoint struct {
	ID      ID
	Address string
}

// Pipe is an identity-only record of an established connection on an
// Endpoint.
type Pipe struct {
	ID         ID
	EndpointID ID
}

// submitLifecycle builds and submits an endpoint/pipe lifecycle event
// directly to s.Bus, as §4 describes the socket layer doing (these are
// not synthesised from MQ readiness, unlike CAN_SEND/CAN_RECV).
func (s *Socket) submitLifecycle(typ eventbus.EventType, endpointID, pipeID ID) *eventbus.Event {
	e := eventbus.NewEvent(s.Bus, typ)
	e.SocketID = string(s.ID)
	e.EndpointID = string(endpointID)
	e.PipeID = string(pipeID)
	s.Bus.Submit(e)
	return e
}

// AddEndpoint submits an ENDPOINT_ADD event for ep.
func (s *Socket) AddEndpoint(ep Endpoint) *eventbus.Event {
	return s.submitLifecycle(eventbus.EndpointAdd, ep.ID, "")
}

// RemoveEndpoint submits an ENDPOINT_REM event for ep.
func (s *Socket) RemoveEndpoint(ep Endpoint) *eventbus.Event {
	return s.submitLifecycle(eventbus.EndpointRem, ep.ID, "")
}

// AddPipe submits a PIPE_ADD event for p.
func (s *Socket) AddPipe(p Pipe) *eventbus.Event {
	return s.submitLifecycle(eventbus.PipeAdd, p.EndpointID, p.ID)
}

// RemovePipe submits a PIPE_REM event for p.
func (s *Socket) RemovePipe(p Pipe) *eventbus.Event {
	return s.submitLifecycle(eventbus.PipeRem, p.EndpointID, p.ID)
}

// ReportError submits a SOCKET_ERROR event carrying no further payload
// beyond the socket's own identity — callers needing structured error
// detail should pair this with the ambient event log (internal/logging).
func (s *Socket) ReportError() *eventbus.Event {
	return s.submitLifecycle(eventbus.SocketError, "", "")
}
