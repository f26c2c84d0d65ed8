// Package controlapi exposes a small gRPC control surface over every
// socket running in this process: a point-in-time stats snapshot and a
// live tail of error/teardown events, for operational dashboards and
// the scalemqctl CLI.
//
// The wire messages are google.golang.org/protobuf/types/known's
// structpb.Struct and emptypb.Empty, so there is no generated .pb.go
// stub to hand-author — only a manually registered grpc.ServiceDesc,
// in the shape protoc-gen-go-grpc would otherwise produce.
package controlapi

import (
	"sync"

	"github.com/oriys/scalemq/internal/eventbus"
	"github.com/oriys/scalemq/internal/socket"
)

// Registry tracks every socket this process has created, so the
// control API can report on and listen to all of them without each
// caller having to pass socket references through explicitly.
type Registry struct {
	mu      sync.RWMutex
	sockets map[string]*socket.Socket
}

// NewRegistry creates an empty socket registry.
func NewRegistry() *Registry {
	return &Registry{sockets: make(map[string]*socket.Socket)}
}

// Register adds sock to the registry, keyed by its ID.
func (r *Registry) Register(sock *socket.Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sockets[string(sock.ID)] = sock
}

// Unregister removes sock from the registry.
func (r *Registry) Unregister(sock *socket.Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sockets, string(sock.ID))
}

// Snapshot returns every currently registered socket.
func (r *Registry) Snapshot() []*socket.Socket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*socket.Socket, 0, len(r.sockets))
	for _, s := range r.sockets {
		out = append(out, s)
	}
	return out
}

// watchMask is the set of event types WatchEvents tails: teardown and
// error conditions an operator cares about, not every readiness kick.
const watchMask = eventbus.SocketError | eventbus.PipeRem

// Subscribe registers fn against every currently-registered socket's
// event bus for watchMask events, and returns an unsubscribe func that
// removes it from all of them. Sockets registered after Subscribe is
// called are not included — WatchEvents calls Subscribe once per
// stream and lives only as long as that stream.
func (r *Registry) Subscribe(fn func(sock *socket.Socket, e *eventbus.Event)) func() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type sub struct {
		sock *socket.Socket
		l    *eventbus.Listener
	}
	subs := make([]sub, 0, len(r.sockets))
	for _, s := range r.sockets {
		sock := s
		l := sock.Bus.AddListener(watchMask, func(e *eventbus.Event) { fn(sock, e) })
		subs = append(subs, sub{sock: sock, l: l})
	}

	return func() {
		for _, s := range subs {
			s.sock.Bus.RemoveListener(s.l)
		}
	}
}
