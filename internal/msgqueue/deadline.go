package msgqueue

import (
	"time"

	"github.com/oriys/scalemq/internal/wait"
)

// Deadline controls how long a blocking MsgQueue operation is willing to
// wait. It has three distinguishable states, matching §4.1 of the core
// contract: NEVER (block indefinitely), ZERO (do not block at all — the
// non-blocking variants), and an absolute point in time.
type Deadline struct {
	at       time.Time
	never    bool
	dontWait bool
}

// NeverDeadline disables any timeout; the call blocks until it can
// complete or the queue is closed/errored/signalled.
func NeverDeadline() Deadline { return Deadline{never: true} }

// DontBlock means "fail AGAIN immediately rather than wait" — the
// semantics behind TryPut/TryGet.
func DontBlock() Deadline { return Deadline{dontWait: true} }

// At wraps an absolute wall-clock deadline.
func At(t time.Time) Deadline { return Deadline{at: t} }

// Before returns an At deadline d from now.
func Before(d time.Duration) Deadline { return At(time.Now().Add(d)) }

// IsNever reports whether this is the NEVER sentinel.
func (d Deadline) IsNever() bool { return d.never }

// IsDontBlock reports whether this is the ZERO ("do not block") sentinel.
func (d Deadline) IsDontBlock() bool { return d.dontWait }

func (d Deadline) toWait() wait.Deadline {
	if d.never {
		return wait.Never
	}
	return wait.NewDeadline(d.at)
}
