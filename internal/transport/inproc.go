package transport

import (
	"fmt"
	"io"
	"sync"
)

// inprocConn is an in-memory Conn backing the inproc transport: two
// ends of an io.Pipe-based duplex, so Pipe's readFrame/writeFrame
// framing logic is exercised identically to a real network transport.
type inprocConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (c *inprocConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *inprocConn) Write(p []byte) (int, error) { return c.w.Write(p) }
func (c *inprocConn) Close() error {
	c.r.CloseWithError(io.ErrClosedPipe)
	return c.w.Close()
}

func newInprocPair() (Conn, Conn) {
	ar, aw := io.Pipe()
	br, bw := io.Pipe()
	// side A reads what side B writes, and vice versa.
	a := &inprocConn{r: ar, w: bw}
	b := &inprocConn{r: br, w: aw}
	return a, b
}

// InprocRegistry is a process-wide directory of named inproc listen
// addresses, the analog of a loopback address space for sockets that
// live in the same process but shouldn't share a MsgQueue directly
// (e.g. two independently-owned sockets in a test harness).
type InprocRegistry struct {
	mu        sync.Mutex
	listeners map[string]chan Conn
}

// NewInprocRegistry creates an empty registry.
func NewInprocRegistry() *InprocRegistry {
	return &InprocRegistry{listeners: make(map[string]chan Conn)}
}

// Listen reserves address, returning a channel Dial delivers
// connections to. The channel is closed when CloseListener(address) is
// called.
func (r *InprocRegistry) Listen(address string) (<-chan Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.listeners[address]; exists {
		return nil, fmt.Errorf("transport: inproc address %q already in use", address)
	}
	ch := make(chan Conn)
	r.listeners[address] = ch
	return ch, nil
}

// CloseListener stops accepting new connections on address.
func (r *InprocRegistry) CloseListener(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.listeners[address]; ok {
		close(ch)
		delete(r.listeners, address)
	}
}

// Dial connects to a listener previously registered with Listen,
// handing the listener side one end of an in-memory duplex pipe and
// returning the other end to the dialer.
func (r *InprocRegistry) Dial(address string) (Conn, error) {
	r.mu.Lock()
	ch, ok := r.listeners[address]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("transport: no inproc listener at %q", address)
	}

	dialerSide, listenerSide := newInprocPair()
	ch <- listenerSide
	return dialerSide, nil
}
