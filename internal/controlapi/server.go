package controlapi

import (
	"context"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oriys/scalemq/internal/eventbus"
	"github.com/oriys/scalemq/internal/socket"
)

// Server implements the scalemq control service against a Registry.
type Server struct {
	registry *Registry
}

// NewServer creates a control API server reporting on reg.
func NewServer(reg *Registry) *Server {
	return &Server{registry: reg}
}

// Stats returns a point-in-time snapshot of every registered socket's
// queue depths/capacities.
func (s *Server) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sockets := make(map[string]interface{}, 0)
	for _, sock := range s.registry.Snapshot() {
		sockets[string(sock.ID)] = map[string]interface{}{
			"send_len":      float64(sock.Send.Len()),
			"send_capacity": float64(sock.Send.Cap()),
			"recv_len":      float64(sock.Recv.Len()),
			"recv_capacity": float64(sock.Recv.Cap()),
		}
	}
	return structpb.NewStruct(map[string]interface{}{
		"sockets": sockets,
	})
}

// eventStream is the subset of grpc.ServerStream a WatchEvents
// implementation needs — narrow enough to exercise with a fake in
// tests.
type eventStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

// WatchEvents tails SOCKET_ERROR and PIPE_REM events bus-wide,
// streaming each as a Struct until the client disconnects.
func (s *Server) WatchEvents(_ *emptypb.Empty, stream eventStream) error {
	out := make(chan *structpb.Struct, 64)

	unsubscribe := s.registry.Subscribe(func(sock *socket.Socket, e *eventbus.Event) {
		msg, err := structpb.NewStruct(map[string]interface{}{
			"socket_id":   string(sock.ID),
			"event_type":  eventTypeName(e.Type),
			"endpoint_id": e.EndpointID,
			"pipe_id":     e.PipeID,
		})
		if err != nil {
			return
		}
		select {
		case out <- msg:
		default:
			// Slow dashboard consumer — drop rather than block the
			// event bus's notifier goroutine.
		}
	})
	defer unsubscribe()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-out:
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func eventTypeName(t eventbus.EventType) string {
	switch t {
	case eventbus.CanSend:
		return "CAN_SEND"
	case eventbus.CanRecv:
		return "CAN_RECV"
	case eventbus.PipeAdd:
		return "PIPE_ADD"
	case eventbus.PipeRem:
		return "PIPE_REM"
	case eventbus.EndpointAdd:
		return "ENDPOINT_ADD"
	case eventbus.EndpointRem:
		return "ENDPOINT_REM"
	case eventbus.SocketError:
		return "SOCKET_ERROR"
	default:
		return "UNKNOWN"
	}
}
