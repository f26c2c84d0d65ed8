package main

import (
	"testing"

	"github.com/oriys/scalemq/internal/eventbus"
)

func TestParseVsockPort(t *testing.T) {
	got, err := parseVsockPort("7700")
	if err != nil {
		t.Fatalf("parseVsockPort: %v", err)
	}
	if got != 7700 {
		t.Fatalf("parseVsockPort = %d, want 7700", got)
	}

	if _, err := parseVsockPort("not-a-port"); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestParseVsockPeer(t *testing.T) {
	cid, port, err := parseVsockPeer("3:7700")
	if err != nil {
		t.Fatalf("parseVsockPeer: %v", err)
	}
	if cid != 3 || port != 7700 {
		t.Fatalf("parseVsockPeer = (%d, %d), want (3, 7700)", cid, port)
	}

	if _, _, err := parseVsockPeer("7700"); err == nil {
		t.Fatal("expected error for address missing cid")
	}
}

func TestEventTypeName(t *testing.T) {
	cases := []struct {
		in   eventbus.EventType
		want string
	}{
		{eventbus.CanSend, "CAN_SEND"},
		{eventbus.CanRecv, "CAN_RECV"},
		{eventbus.PipeAdd, "PIPE_ADD"},
		{eventbus.PipeRem, "PIPE_REM"},
		{eventbus.EndpointAdd, "ENDPOINT_ADD"},
		{eventbus.EndpointRem, "ENDPOINT_REM"},
		{eventbus.SocketError, "SOCKET_ERROR"},
		{eventbus.EventType(0), "UNKNOWN"},
	}
	for _, tt := range cases {
		if got := eventTypeName(tt.in); got != tt.want {
			t.Fatalf("eventTypeName(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
