package transport

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/oriys/scalemq/internal/circuitbreaker"
	"github.com/oriys/scalemq/internal/msgqueue"
	"github.com/oriys/scalemq/internal/socket"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Frame("hello, scalemq")
	if err := writeFrame(&buf, want); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	got, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestInprocRegistryDialListen(t *testing.T) {
	reg := NewInprocRegistry()
	accepted, err := reg.Listen("bus-1")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	dialErr := make(chan error, 1)
	var dialerConn Conn
	go func() {
		c, err := reg.Dial("bus-1")
		dialerConn = c
		dialErr <- err
	}()

	var listenerConn Conn
	select {
	case listenerConn = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accepted connection")
	}
	if err := <-dialErr; err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := writeFrame(dialerConn, Frame("ping")); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	got, err := readFrame(listenerConn)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("got %q, want ping", got)
	}
}

func TestInprocDialUnknownAddressErrors(t *testing.T) {
	reg := NewInprocRegistry()
	if _, err := reg.Dial("nowhere"); err == nil {
		t.Fatal("expected error dialing unregistered address")
	}
}

func TestTCPPipeCarriesFramesBothWays(t *testing.T) {
	serverSock, err := socket.New(4, 4)
	if err != nil {
		t.Fatalf("New server socket: %v", err)
	}
	defer serverSock.Close()

	ln, err := ListenTCP("127.0.0.1:0", serverSock)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	clientSock, err := socket.New(4, 4)
	if err != nil {
		t.Fatalf("New client socket: %v", err)
	}
	defer clientSock.Close()

	addr := ln.ln.Addr().String()
	pipe, err := DialTCP(context.Background(), addr, clientSock, nil, circuitbreaker.Config{}, time.Second)
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer pipe.Close()

	if err := clientSock.Send.Put(Frame("hello"), msgqueue.NeverDeadline(), nil); err != nil {
		t.Fatalf("Put: %v", err)
	}

	m, err := serverSock.Recv.Get(msgqueue.Before(2*time.Second), nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(m.(Frame)) != "hello" {
		t.Fatalf("got %q, want hello", m)
	}
}
