package controlapi

import (
	"context"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oriys/scalemq/internal/socket"
)

func TestStatsReportsRegisteredSockets(t *testing.T) {
	reg := NewRegistry()
	sock, err := socket.New(4, 8)
	if err != nil {
		t.Fatalf("socket.New: %v", err)
	}
	defer sock.Close()
	reg.Register(sock)

	srv := NewServer(reg)
	out, err := srv.Stats(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	sockets := out.Fields["sockets"].GetStructValue()
	if sockets == nil {
		t.Fatal("expected sockets field in response")
	}
	entry := sockets.Fields[string(sock.ID)].GetStructValue()
	if entry == nil {
		t.Fatalf("expected entry for socket %s", sock.ID)
	}
	if got := entry.Fields["send_capacity"].GetNumberValue(); got != 4 {
		t.Fatalf("send_capacity = %v, want 4", got)
	}
	if got := entry.Fields["recv_capacity"].GetNumberValue(); got != 8 {
		t.Fatalf("recv_capacity = %v, want 8", got)
	}
}

func TestStatsOmitsUnregisteredSockets(t *testing.T) {
	reg := NewRegistry()
	srv := NewServer(reg)

	out, err := srv.Stats(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	sockets := out.Fields["sockets"].GetStructValue()
	if sockets != nil && len(sockets.Fields) != 0 {
		t.Fatalf("expected no sockets, got %d", len(sockets.Fields))
	}
}

type fakeEventStream struct {
	ctx context.Context
	out chan *structpb.Struct
}

func (f *fakeEventStream) Send(m *structpb.Struct) error {
	f.out <- m
	return nil
}

func (f *fakeEventStream) Context() context.Context { return f.ctx }

func TestWatchEventsStreamsSocketError(t *testing.T) {
	reg := NewRegistry()
	sock, err := socket.New(4, 4)
	if err != nil {
		t.Fatalf("socket.New: %v", err)
	}
	defer sock.Close()
	reg.Register(sock)

	srv := NewServer(reg)

	ctx, cancel := context.WithCancel(context.Background())
	stream := &fakeEventStream{ctx: ctx, out: make(chan *structpb.Struct, 4)}

	done := make(chan error, 1)
	go func() { done <- srv.WatchEvents(&emptypb.Empty{}, stream) }()

	e := sock.ReportError()
	sock.Bus.Wait(e)

	select {
	case msg := <-stream.out:
		if got := msg.Fields["event_type"].GetStringValue(); got != "SOCKET_ERROR" {
			t.Fatalf("event_type = %q, want SOCKET_ERROR", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for streamed event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchEvents did not return after context cancellation")
	}
}
