// Package transport carries Frame messages between a socket's MsgQueue
// and a remote peer, over whichever wire a socket topology names:
// inproc, TCP, vsock, or Redis Streams. TCP dials are guarded by
// internal/circuitbreaker so a flapping remote peer doesn't starve the
// caller in retries (the other transports dial without a breaker); every
// accepted/dialed connection becomes a Pipe
// that pumps frames in both directions and reports PipeAdd/PipeRem
// lifecycle events on the owning socket's bus, mirroring how the
// teacher's internal/pkg/vsock and internal/triggers connectors wire a
// raw conn into the rest of the system.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/oriys/scalemq/internal/logging"
	"github.com/oriys/scalemq/internal/metrics"
	"github.com/oriys/scalemq/internal/msgqueue"
	"github.com/oriys/scalemq/internal/ratelimit"
	"github.com/oriys/scalemq/internal/socket"
)

// maxFrameSize bounds a single frame to guard against a misbehaving
// peer claiming an absurd length prefix.
const maxFrameSize = 64 << 20 // 64 MiB

// Frame is a length-delimited byte message, the wire Msg implementation
// every transport in this package produces and consumes.
type Frame []byte

// Len implements msgqueue.Msg.
func (f Frame) Len() int { return len(f) }

// writeFrame writes a 4-byte big-endian length prefix followed by data.
func writeFrame(w io.Writer, data []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFrame reads one length-prefixed frame from r.
func readFrame(r io.Reader) (Frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds max %d", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return Frame(buf), nil
}

// Conn is the minimal bidirectional byte-stream a Pipe pumps frames
// over. net.Conn and *vsock.Conn both satisfy it.
type Conn interface {
	io.Reader
	io.Writer
	Close() error
}

// Pipe moves Frames between a Conn and a socket's Send/Recv queues
// until the connection closes or the socket's queues drain closed. It
// is the transport-layer analog of spec.md §6's "Pipe" identity, given
// actual I/O behaviour.
type Pipe struct {
	conn       Conn
	sock       *socket.Socket
	endpointID socket.ID
	pipeID     socket.ID
	transport  string

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	// gate is nil for a plain NewPipe; NewGatedPipe sets it and routes
	// readLoop through readLoopGated instead.
	gate *ratelimit.Gate
}

// NewPipe wraps conn as a Pipe feeding sock, announcing PIPE_ADD on
// sock's bus and pumping frames until Close or a read/write error.
func NewPipe(conn Conn, sock *socket.Socket, endpointID socket.ID, transportName string) *Pipe {
	p := &Pipe{
		conn:       conn,
		sock:       sock,
		endpointID: endpointID,
		pipeID:     socket.NewID(),
		transport:  transportName,
	}
	e := sock.AddPipe(socket.Pipe{ID: p.pipeID, EndpointID: endpointID})
	sock.Bus.Wait(e)

	p.wg.Add(2)
	go p.readLoop()
	go p.writeLoop()
	return p
}

// readLoop reads frames off the wire and enqueues them on sock.Recv
// until the conn errors or sock.Recv is closed.
func (p *Pipe) readLoop() {
	defer p.wg.Done()
	for {
		frame, err := readFrame(p.conn)
		if err != nil {
			logging.Op().Debug("transport: read loop ending", "transport", p.transport, "pipe", p.pipeID, "err", err)
			p.Close()
			return
		}
		if putErr := p.sock.Recv.Put(frame, msgqueue.NeverDeadline(), nil); putErr != nil {
			p.Close()
			return
		}
		metrics.RecordPut(string(p.sock.ID), "recv", "ok")
	}
}

// writeLoop dequeues frames from sock.Send and writes them to the wire
// until sock.Send closes or the conn errors.
func (p *Pipe) writeLoop() {
	defer p.wg.Done()
	for {
		m, err := p.sock.Send.Get(msgqueue.NeverDeadline(), nil)
		if err != nil {
			p.Close()
			return
		}
		frame, ok := m.(Frame)
		if !ok {
			continue
		}
		if err := writeFrame(p.conn, frame); err != nil {
			logging.Op().Debug("transport: write loop ending", "transport", p.transport, "pipe", p.pipeID, "err", err)
			p.Close()
			return
		}
		metrics.RecordGet(string(p.sock.ID), "send", "ok")
	}
}

// Close closes the underlying conn and announces PIPE_REM. Safe to
// call more than once or concurrently with the pump goroutines.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.conn.Close()
		e := p.sock.RemovePipe(socket.Pipe{ID: p.pipeID, EndpointID: p.endpointID})
		p.sock.Bus.Wait(e)
	})
	return p.closeErr
}

// Wait blocks until both pump goroutines have exited.
func (p *Pipe) Wait() {
	p.wg.Wait()
}
