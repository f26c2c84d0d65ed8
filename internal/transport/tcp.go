package transport

import (
	"context"
	"net"
	"time"

	"github.com/oriys/scalemq/internal/circuitbreaker"
	"github.com/oriys/scalemq/internal/logging"
	"github.com/oriys/scalemq/internal/metrics"
	"github.com/oriys/scalemq/internal/socket"
)

// TCPListener accepts inbound TCP connections and turns each into a
// Pipe feeding sock.
type TCPListener struct {
	ln   net.Listener
	sock *socket.Socket
	ep   socket.ID
	done chan struct{}
}

// ListenTCP binds addr and starts accepting connections for sock,
// registering an ENDPOINT_ADD event for the listen address.
func ListenTCP(addr string, sock *socket.Socket) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	epID := socket.NewID()
	e := sock.AddEndpoint(socket.Endpoint{ID: epID, Address: addr})
	sock.Bus.Wait(e)

	l := &TCPListener{ln: ln, sock: sock, ep: epID, done: make(chan struct{})}
	go l.acceptLoop()
	return l, nil
}

func (l *TCPListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			logging.Op().Warn("transport: tcp accept error", "err", err)
			return
		}
		NewPipe(conn, l.sock, l.ep, "tcp")
	}
}

// Close stops accepting and removes the endpoint.
func (l *TCPListener) Close() error {
	close(l.done)
	err := l.ln.Close()
	e := l.sock.RemoveEndpoint(socket.Endpoint{ID: l.ep})
	l.sock.Bus.Wait(e)
	return err
}

// DialTCP dials addr for sock, guarded by breaker registry cb (nil
// disables circuit breaking). dialTimeout bounds the connection
// attempt; cfg controls the breaker's trip thresholds.
func DialTCP(ctx context.Context, addr string, sock *socket.Socket, cb *circuitbreaker.Registry, cfg circuitbreaker.Config, dialTimeout time.Duration) (*Pipe, error) {
	var breaker *circuitbreaker.Breaker
	if cb != nil {
		breaker = cb.Get(addr, cfg)
		if breaker != nil && !breaker.Allow() {
			metrics.SetCircuitBreakerState(addr, int(breaker.State()))
			return nil, errBreakerOpen(addr)
		}
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
			metrics.SetCircuitBreakerState(addr, int(breaker.State()))
		}
		return nil, err
	}
	if breaker != nil {
		breaker.RecordSuccess()
		metrics.SetCircuitBreakerState(addr, int(breaker.State()))
	}

	epID := socket.NewID()
	e := sock.AddEndpoint(socket.Endpoint{ID: epID, Address: addr})
	sock.Bus.Wait(e)

	return NewPipe(conn, sock, epID, "tcp"), nil
}
