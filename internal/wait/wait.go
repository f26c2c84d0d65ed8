// Package wait implements the mutex/condition-variable/signal-token
// primitive the rest of the core is built on: a condition variable bound
// to exactly one mutex for its lifetime, with an absolute-deadline wait in
// addition to the unbounded sync.Cond semantics, plus a shared signal
// token any party may raise to mean "interrupted".
//
// The deadline-aware wait is grounded on the same shape as
// internal/pool's VM-acquisition wait: a goroutine translates the
// deadline into a wakeup since sync.Cond has no native timeout support.
package wait

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cond is a condition variable bound to a single sync.Locker for its
// lifetime. It behaves like sync.Cond but additionally supports waiting
// with an absolute deadline.
//
// Signal and Broadcast must be called with the bound lock held, matching
// every call site in this core (kicks and closes always run under the MQ
// or socket mutex already).
type Cond struct {
	mu         sync.Locker
	cond       *sync.Cond
	generation uint64
}

// NewCond creates a Cond bound to l for its lifetime.
func NewCond(l sync.Locker) *Cond {
	return &Cond{mu: l, cond: sync.NewCond(l)}
}

// Signal wakes one waiter, if any. Must be called with the bound lock held.
func (c *Cond) Signal() {
	c.generation++
	c.cond.Signal()
}

// Broadcast wakes all waiters. Must be called with the bound lock held.
func (c *Cond) Broadcast() {
	c.generation++
	c.cond.Broadcast()
}

// Wait releases the bound lock, suspends the calling goroutine until
// Signal or Broadcast is called, and re-acquires the lock before
// returning. Spurious wakeups are permitted; callers must re-check their
// predicate.
func (c *Cond) Wait() {
	c.cond.Wait()
}

// Deadline is an absolute point in time a WaitUntil call gives up at. The
// zero Deadline is the NEVER sentinel: it disables the timeout entirely.
type Deadline time.Time

// Never disables the wait timeout — WaitUntil blocks exactly like Wait.
var Never = Deadline{}

// IsNever reports whether d is the "wait forever" sentinel.
func (d Deadline) IsNever() bool { return time.Time(d).IsZero() }

// NewDeadline wraps an absolute time.Time as a Deadline.
func NewDeadline(t time.Time) Deadline { return Deadline(t) }

// WaitUntil blocks until Signal/Broadcast wakes this Cond or the deadline
// elapses, whichever comes first. Must be called with the bound lock
// held; it releases the lock while suspended and re-acquires it before
// returning, exactly like Wait.
//
// Returns true if a real Signal/Broadcast happened to be observed (callers
// must still re-check their predicate — spurious wakeups remain possible,
// and a real wakeup racing the deadline is reported as woken, never as a
// false timeout), false if the deadline elapsed with no intervening
// Signal/Broadcast.
//
// A deadline already in the past returns false immediately without
// suspending — callers that want ZERO ("do not block") semantics should
// check their predicate and skip calling WaitUntil entirely, per this
// core's AGAIN-before-TIMEDOUT ordering.
func (c *Cond) WaitUntil(deadline Deadline) (woken bool) {
	if deadline.IsNever() {
		c.cond.Wait()
		return true
	}

	remaining := time.Until(time.Time(deadline))
	if remaining <= 0 {
		return false
	}

	genBefore := c.generation
	timer := time.AfterFunc(remaining, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})

	c.cond.Wait()
	timer.Stop()

	return c.generation != genBefore
}

// Signal is a shared integer token any party may raise to interrupt a
// specific waiting call site. It is not itself a wakeup mechanism — the
// party that raises it is expected to also Broadcast the relevant Cond
// (see MsgQueue.Signal) so that a sleeping waiter actually wakes up to
// observe it.
type Signal struct {
	v int32
}

// Raise sets the token to nonzero ("interrupted"). Safe for concurrent use
// with IsSet, but not a substitute for waking the waiter.
func (s *Signal) Raise() {
	atomic.StoreInt32(&s.v, 1)
}

// Clear resets the token to zero.
func (s *Signal) Clear() {
	atomic.StoreInt32(&s.v, 0)
}

// IsSet reports whether the token is currently raised.
func (s *Signal) IsSet() bool {
	return atomic.LoadInt32(&s.v) != 0
}
