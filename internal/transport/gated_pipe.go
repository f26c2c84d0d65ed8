package transport

import (
	"context"

	"github.com/oriys/scalemq/internal/logging"
	"github.com/oriys/scalemq/internal/metrics"
	"github.com/oriys/scalemq/internal/mqerr"
	"github.com/oriys/scalemq/internal/msgqueue"
	"github.com/oriys/scalemq/internal/ratelimit"
	"github.com/oriys/scalemq/internal/socket"
)

// NewGatedPipe wraps conn as a Pipe exactly like NewPipe, except every
// frame the read loop pulls off the wire is admitted through gate
// before it reaches sock.Recv — throttling a noisy remote peer at the
// point frames enter the process, rather than only once they reach the
// bounded queue.
//
// A throttled frame is dropped, not queued and not a connection-ending
// error: admission control degrades delivery, it doesn't tear down the
// transport, matching ratelimit.Gate's own backend-failure-degrades-to-
// admit posture.
func NewGatedPipe(conn Conn, sock *socket.Socket, endpointID socket.ID, transportName string, gate *ratelimit.Gate) *Pipe {
	p := &Pipe{
		conn:       conn,
		sock:       sock,
		endpointID: endpointID,
		pipeID:     socket.NewID(),
		transport:  transportName,
		gate:       gate,
	}
	e := sock.AddPipe(socket.Pipe{ID: p.pipeID, EndpointID: endpointID})
	sock.Bus.Wait(e)

	p.wg.Add(2)
	go p.readLoopGated()
	go p.writeLoop()
	return p
}

// readLoopGated is readLoop's admission-checked counterpart, used only
// when a Pipe was constructed with NewGatedPipe.
func (p *Pipe) readLoopGated() {
	defer p.wg.Done()
	for {
		frame, err := readFrame(p.conn)
		if err != nil {
			logging.Op().Debug("transport: read loop ending", "transport", p.transport, "pipe", p.pipeID, "err", err)
			p.Close()
			return
		}

		putErr := p.gate.GatedPut(context.Background(), string(p.sock.ID), p.sock.Recv, frame, msgqueue.NeverDeadline(), nil)
		switch putErr {
		case nil:
			metrics.RecordAdmission(string(p.sock.ID), "allowed")
			metrics.RecordPut(string(p.sock.ID), "recv", "ok")
		case mqerr.ErrAgain:
			metrics.RecordAdmission(string(p.sock.ID), "throttled")
		default:
			p.Close()
			return
		}
	}
}
