package transport

import (
	"github.com/mdlayher/vsock"

	"github.com/oriys/scalemq/internal/socket"
)

// VsockListener accepts inbound vsock connections — for socket
// endpoints that live across a VM boundary, e.g. a host-side control
// socket reachable from inside a guest.
type VsockListener struct {
	ln   *vsock.Listener
	sock *socket.Socket
	ep   socket.ID
	done chan struct{}
}

// ListenVsock listens on the given vsock port for sock.
func ListenVsock(port uint32, sock *socket.Socket) (*VsockListener, error) {
	ln, err := vsock.Listen(port, nil)
	if err != nil {
		return nil, err
	}

	epID := socket.NewID()
	e := sock.AddEndpoint(socket.Endpoint{ID: epID, Address: ln.Addr().String()})
	sock.Bus.Wait(e)

	l := &VsockListener{ln: ln, sock: sock, ep: epID, done: make(chan struct{})}
	go l.acceptLoop()
	return l, nil
}

func (l *VsockListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			return
		}
		NewPipe(conn, l.sock, l.ep, "vsock")
	}
}

// Close stops accepting and removes the endpoint.
func (l *VsockListener) Close() error {
	close(l.done)
	err := l.ln.Close()
	e := l.sock.RemoveEndpoint(socket.Endpoint{ID: l.ep})
	l.sock.Bus.Wait(e)
	return err
}

// DialVsock dials a peer at (cid, port) for sock — e.g. a guest
// connecting to its host's well-known control CID.
func DialVsock(cid, port uint32, sock *socket.Socket) (*Pipe, error) {
	conn, err := vsock.Dial(cid, port, nil)
	if err != nil {
		return nil, err
	}

	epID := socket.NewID()
	e := sock.AddEndpoint(socket.Endpoint{ID: epID, Address: conn.RemoteAddr().String()})
	sock.Bus.Wait(e)

	return NewPipe(conn, sock, epID, "vsock"), nil
}
