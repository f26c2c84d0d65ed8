// Package msgqueue implements the bounded, closable, resizable FIFO of
// message handles that protocols and transports push/pop through: the
// core primitive the rest of this library builds on.
//
// It is grounded line-for-line on nng's nni_msgq (original_source's
// src/core/msgqueue.c): the same ring-buffer layout with two reserved
// cells, the same put/get preference-over-close-and-error ordering, and
// the same level-triggered CAN_PUT/CAN_GET kick discipline. Lock/CV
// plumbing comes from internal/wait; the worker-goroutine shutdown
// discipline (start on first registration, join on Fini) follows the
// Start/Stop/sync.WaitGroup idiom used throughout the teacher's own
// worker pools.
package msgqueue

import (
	"sync"

	"github.com/oriys/scalemq/internal/mqerr"
	"github.com/oriys/scalemq/internal/wait"
)

// Msg is an opaque message handle. The queue takes ownership of a Msg on
// a successful Put/Putback and releases it (see Freer) on Close or an
// overflowing Resize.
type Msg interface {
	Len() int
}

// Freer is an optional extension a Msg may implement to release any
// resources it holds when the queue frees it instead of delivering it.
type Freer interface {
	Free()
}

func freeMsg(m Msg) {
	if m == nil {
		return
	}
	if f, ok := m.(Freer); ok {
		f.Free()
	}
}

// SigMask is the level-triggered readiness bitmask a MsgQueue kicks its
// notifier with.
type SigMask uint32

const (
	// CanPut means the queue has room for another Put, or is unbuffered
	// with a pending reader ready to take a handoff.
	CanPut SigMask = 1 << iota
	// CanGet means the queue has at least one message, or is unbuffered
	// with a pending writer ready to hand one off.
	CanGet
)

// NotifyFunc is a readiness callback: invoked outside the MQ lock with
// the bits that were pending since the last invocation.
type NotifyFunc func(mq *MsgQueue, bits SigMask, arg any)

// MsgQueue is a bounded FIFO of Msg handles with blocking, timed, and
// non-blocking put/get, signal-interruptible waits, and put-back at the
// head. The zero value is not usable; construct with New.
type MsgQueue struct {
	mu sync.Mutex

	readable *wait.Cond
	writable *wait.Cond
	drained  *wait.Cond
	notifyCV *wait.Cond

	capacity int
	alloc    int
	ring     []Msg
	getIdx   int
	putIdx   int
	length   int

	closed bool
	putErr error
	getErr error

	// rwaitN/wwaitN count goroutines currently blocked on readable/
	// writable. The spec describes these as single flags; a count is
	// used here because multiple concurrent waiters on the same MQ
	// must be supported (the non-goal only excludes fairness, not
	// multiple waiters), and a count lets each waiter manage its own
	// decrement on every exit path without the others losing track of
	// whether anyone is still waiting.
	rwaitN int
	wwaitN int

	notifyFn      NotifyFunc
	notifyArg     any
	notifySig     SigMask
	notifyRunning bool
	notifyWG      sync.WaitGroup
}

// New creates a MsgQueue with the given capacity. The backing ring
// allocates cap+2 cells: one reserved for an atomic Putback even at full
// capacity, one for unbuffered (cap==0) hand-off.
func New(capacity int) (*MsgQueue, error) {
	if capacity < 0 {
		return nil, mqerr.ErrInval
	}
	alloc := capacity + 2
	q := &MsgQueue{
		capacity: capacity,
		alloc:    alloc,
		ring:     make([]Msg, alloc),
	}
	q.readable = wait.NewCond(&q.mu)
	q.writable = wait.NewCond(&q.mu)
	q.drained = wait.NewCond(&q.mu)
	q.notifyCV = wait.NewCond(&q.mu)
	return q, nil
}

// Len returns the current occupancy.
func (q *MsgQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

// Cap returns the configured capacity (not the reserved-cell allocation).
func (q *MsgQueue) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Put enqueues msg, blocking per deadline and aborting early if sig
// becomes set. On success the queue owns msg.
func (q *MsgQueue) Put(msg Msg, deadline Deadline, sig *wait.Signal) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return mqerr.ErrClosed
		}
		if q.putErr != nil {
			return q.putErr
		}
		if q.length < q.capacity {
			break
		}
		if q.capacity == 0 && q.rwaitN > 0 && q.length == 0 {
			break
		}
		if sig != nil && sig.IsSet() {
			return mqerr.ErrIntr
		}
		if deadline.IsDontBlock() {
			return mqerr.ErrAgain
		}

		q.wwaitN++
		if q.capacity == 0 {
			q.kickLocked(CanGet)
		}
		woken := q.writable.WaitUntil(deadline.toWait())
		q.wwaitN--
		if !woken && !deadline.IsNever() {
			return mqerr.ErrTimedout
		}
	}

	q.enqueueLocked(msg)
	return nil
}

// TryPut is Put with a ZERO deadline: it never blocks.
func (q *MsgQueue) TryPut(msg Msg) error {
	return q.Put(msg, DontBlock(), nil)
}

// enqueueLocked appends msg to the ring and performs the kicks §4.2.1's
// enqueue step describes. Must be called under q.mu.
func (q *MsgQueue) enqueueLocked(msg Msg) {
	q.ring[q.putIdx] = msg
	q.putIdx = (q.putIdx + 1) % q.alloc
	q.length++

	if q.rwaitN > 0 {
		q.readable.Signal()
	}

	bits := CanGet
	if q.length < q.capacity {
		bits |= CanPut
	}
	q.kickLocked(bits)
}

// Get dequeues the oldest message, blocking per deadline and aborting
// early if sig becomes set. A pending message is always preferred over an
// observed close or sticky error.
func (q *MsgQueue) Get(deadline Deadline, sig *wait.Signal) (Msg, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.length > 0 {
			return q.dequeueLocked(), nil
		}
		if q.closed {
			return nil, mqerr.ErrClosed
		}
		if q.getErr != nil {
			return nil, q.getErr
		}
		if deadline.IsDontBlock() {
			return nil, mqerr.ErrAgain
		}
		if sig != nil && sig.IsSet() {
			return nil, mqerr.ErrIntr
		}

		q.rwaitN++
		if q.capacity == 0 {
			if q.wwaitN > 0 {
				q.writable.Signal()
			}
			q.kickLocked(CanPut)
		}
		woken := q.readable.WaitUntil(deadline.toWait())
		q.rwaitN--
		if !woken && !deadline.IsNever() {
			return nil, mqerr.ErrTimedout
		}
	}
}

// TryGet is Get with a ZERO deadline: it never blocks.
func (q *MsgQueue) TryGet() (Msg, error) {
	return q.Get(DontBlock(), nil)
}

// dequeueLocked pops the head message and performs the kicks §4.2.2's
// dequeue step describes. Must be called under q.mu with length > 0.
func (q *MsgQueue) dequeueLocked() Msg {
	msg := q.ring[q.getIdx]
	q.ring[q.getIdx] = nil
	q.getIdx = (q.getIdx + 1) % q.alloc
	q.length--

	if q.wwaitN > 0 {
		q.writable.Signal()
	}
	if q.length == 0 {
		q.drained.Broadcast()
	}

	bits := CanPut
	if q.length > 0 {
		bits |= CanGet
	}
	q.kickLocked(bits)

	return msg
}

// Putback places msg at the head of the queue for redelivery, using the
// reserved overflow cell — it succeeds even when Len() == Cap().
func (q *MsgQueue) Putback(msg Msg) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return mqerr.ErrClosed
	}

	q.getIdx = (q.getIdx - 1 + q.alloc) % q.alloc
	q.ring[q.getIdx] = msg
	q.length++

	if q.rwaitN > 0 {
		q.readable.Signal()
	}
	q.kickLocked(CanGet)
	return nil
}

// Close marks the queue closed, wakes every waiter, and immediately frees
// any messages still in the ring. Idempotent.
func (q *MsgQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked()
}

func (q *MsgQueue) closeLocked() {
	if q.closed {
		return
	}
	q.closed = true

	for i := 0; i < q.length; i++ {
		idx := (q.getIdx + i) % q.alloc
		freeMsg(q.ring[idx])
		q.ring[idx] = nil
	}
	q.length = 0
	q.getIdx = 0
	q.putIdx = 0

	q.readable.Broadcast()
	q.writable.Broadcast()
	q.drained.Broadcast()
	q.notifyCV.Broadcast()
}

// Drain marks the queue closed (if not already), lets pending get()s
// empty it, then frees anything left once either the queue is empty or
// deadline fires. Returns mqerr.ErrTimedout if the deadline fired with
// messages still unconsumed (they are freed regardless).
func (q *MsgQueue) Drain(deadline Deadline) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.readable.Broadcast()
		q.writable.Broadcast()
		q.notifyCV.Broadcast()
	}

	timedOut := false
	for q.length > 0 {
		woken := q.drained.WaitUntil(deadline.toWait())
		if !woken && !deadline.IsNever() {
			timedOut = true
			break
		}
	}

	for i := 0; i < q.length; i++ {
		idx := (q.getIdx + i) % q.alloc
		freeMsg(q.ring[idx])
		q.ring[idx] = nil
	}
	q.length = 0
	q.getIdx = 0
	q.putIdx = 0
	q.drained.Broadcast()

	if timedOut {
		return mqerr.ErrTimedout
	}
	return nil
}

// SetPutErr installs a sticky error on Put (0/nil clears it).
func (q *MsgQueue) SetPutErr(err error) {
	q.mu.Lock()
	q.putErr = err
	q.writable.Broadcast()
	q.mu.Unlock()
}

// SetGetErr installs a sticky error on Get (0/nil clears it).
func (q *MsgQueue) SetGetErr(err error) {
	q.mu.Lock()
	q.getErr = err
	q.readable.Broadcast()
	q.mu.Unlock()
}

// SetErr installs the same sticky error on both Put and Get.
func (q *MsgQueue) SetErr(err error) {
	q.mu.Lock()
	q.putErr = err
	q.getErr = err
	q.writable.Broadcast()
	q.readable.Broadcast()
	q.mu.Unlock()
}

// Signal raises sig and wakes every condition variable on this queue
// (readable, writable, and the notifier) in one critical section, so a
// single call reliably unblocks every waiter regardless of which CV it
// is parked on. Grounded on nni_msgq_signal (see SPEC_FULL.md §4).
func (q *MsgQueue) Signal(sig *wait.Signal) {
	q.mu.Lock()
	if sig != nil {
		sig.Raise()
	}
	q.readable.Broadcast()
	q.writable.Broadcast()
	q.notifyCV.Broadcast()
	q.mu.Unlock()
}

// Resize changes the queue's capacity. If the new occupancy would exceed
// newCap+1, the oldest messages are dropped and freed until it fits,
// preserving the newest min(len, newCap+1) messages in FIFO order.
func (q *MsgQueue) Resize(newCap int) error {
	if newCap < 0 {
		return mqerr.ErrInval
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.length > newCap+1 {
		freeMsg(q.ring[q.getIdx])
		q.ring[q.getIdx] = nil
		q.getIdx = (q.getIdx + 1) % q.alloc
		q.length--
	}

	newAlloc := newCap + 2
	newRing := make([]Msg, newAlloc)
	for i := 0; i < q.length; i++ {
		newRing[i] = q.ring[(q.getIdx+i)%q.alloc]
	}

	q.ring = newRing
	q.getIdx = 0
	q.putIdx = q.length % newAlloc
	q.capacity = newCap
	q.alloc = newAlloc

	q.readable.Broadcast()
	q.writable.Broadcast()
	q.drained.Broadcast()
	return nil
}

// kickLocked ORs bits into the pending notifier signal and wakes the
// notifier worker, if one is registered. Must be called under q.mu.
func (q *MsgQueue) kickLocked(bits SigMask) {
	if q.notifyFn == nil {
		return
	}
	q.notifySig |= bits
	q.notifyCV.Broadcast()
}

// Notify registers fn as the queue's readiness callback, replacing any
// previously registered one, and starts the notifier worker on first
// registration. Per the open question in spec.md §9, concurrent
// registrations are serialised through the MQ lock and the single-writer
// "replace" semantics is deliberate, not a bug: notify registration is not
// meant to be called from multiple unsynchronized sources on the same MQ.
func (q *MsgQueue) Notify(fn NotifyFunc, arg any) {
	q.mu.Lock()
	q.notifyFn = fn
	q.notifyArg = arg
	if !q.notifyRunning {
		q.notifyRunning = true
		q.notifyWG.Add(1)
		go q.notifyWorker()
	}
	q.mu.Unlock()
}

// NotifyCanPut registers fn to be invoked (with no arguments beyond arg)
// only when a pending kick includes CanPut. Convenience wrapper over
// Notify for callers only interested in one bit.
func (q *MsgQueue) NotifyCanPut(fn func(mq *MsgQueue, arg any), arg any) {
	q.Notify(func(mq *MsgQueue, bits SigMask, arg any) {
		if bits&CanPut != 0 {
			fn(mq, arg)
		}
	}, arg)
}

// NotifyCanGet registers fn to be invoked only when a pending kick
// includes CanGet. Convenience wrapper over Notify.
func (q *MsgQueue) NotifyCanGet(fn func(mq *MsgQueue, arg any), arg any) {
	q.Notify(func(mq *MsgQueue, bits SigMask, arg any) {
		if bits&CanGet != 0 {
			fn(mq, arg)
		}
	}, arg)
}

// notifyWorker is the per-MQ readiness worker: it waits for notifySig or
// closed, snapshots and clears the bits, and invokes the callback outside
// the MQ lock. It exits as soon as closed is observed, matching
// nni_msgq_notifier exactly.
func (q *MsgQueue) notifyWorker() {
	defer q.notifyWG.Done()

	q.mu.Lock()
	for {
		for q.notifySig == 0 && !q.closed {
			q.notifyCV.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		bits := q.notifySig
		q.notifySig = 0
		fn := q.notifyFn
		arg := q.notifyArg
		q.mu.Unlock()

		if fn != nil {
			fn(q, bits, arg)
		}

		q.mu.Lock()
	}
}

// Fini closes the queue (if not already) and joins the notifier worker,
// if one was ever started. After Fini the MsgQueue must not be reused.
func (q *MsgQueue) Fini() {
	q.Close()
	q.notifyWG.Wait()
}
