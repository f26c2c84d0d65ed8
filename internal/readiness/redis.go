package readiness

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/oriys/scalemq/internal/msgqueue"
)

// channelPrefix namespaces the pub/sub channels this package publishes
// on, grounded on the teacher's "nova:queue:notify:"+queue convention.
const channelPrefix = "scalemq:queue:notify:"

// Fanout cross-process-broadcasts readiness kicks for a named queue —
// the RedisNotifier from the teacher's internal/queue/redis_notifier.go,
// generalised to an interface so a no-op implementation can stand in when
// no Redis is configured. This sits strictly above the in-process
// MsgQueue/Bus wiring in readiness.go: it exists for the case where two
// processes logically share a queue name and need to learn about each
// other's readiness transitions, which spec.md's core has no concept of
// and does not require.
type Fanout interface {
	// Publish broadcasts that bits became ready on queue.
	Publish(ctx context.Context, queue string, bits msgqueue.SigMask) error
	// Subscribe returns a channel of readiness bits published for queue
	// by any process (including this one), and a cancel function that
	// unsubscribes and closes the channel.
	Subscribe(ctx context.Context, queue string) (<-chan msgqueue.SigMask, func(), error)
	Close() error
}

// NoopFanout implements Fanout with no cross-process effect, for use
// where no Redis endpoint is available.
type NoopFanout struct{}

func (NoopFanout) Publish(context.Context, string, msgqueue.SigMask) error { return nil }

func (NoopFanout) Subscribe(context.Context, string) (<-chan msgqueue.SigMask, func(), error) {
	ch := make(chan msgqueue.SigMask)
	return ch, func() { close(ch) }, nil
}

func (NoopFanout) Close() error { return nil }

// RedisFanout publishes and subscribes to readiness kicks over Redis
// pub/sub, grounded on the teacher's RedisNotifier shape but standardised
// on go-redis/redis/v8 to match this repo's go.mod (the teacher itself
// inconsistently imported v9 in that file).
type RedisFanout struct {
	client *redis.Client
}

// NewRedisFanout wraps an existing client. The caller owns the client's
// lifecycle except that Close also closes it.
func NewRedisFanout(client *redis.Client) *RedisFanout {
	return &RedisFanout{client: client}
}

func (f *RedisFanout) Publish(ctx context.Context, queue string, bits msgqueue.SigMask) error {
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], uint32(bits))
	if err := f.client.Publish(ctx, channelPrefix+queue, payload[:]).Err(); err != nil {
		return fmt.Errorf("readiness: publish %s: %w", queue, err)
	}
	return nil
}

func (f *RedisFanout) Subscribe(ctx context.Context, queue string) (<-chan msgqueue.SigMask, func(), error) {
	sub := f.client.Subscribe(ctx, channelPrefix+queue)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, nil, fmt.Errorf("readiness: subscribe %s: %w", queue, err)
	}

	out := make(chan msgqueue.SigMask, 16)
	msgs := sub.Channel()
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case m, ok := <-msgs:
				if !ok {
					return
				}
				if len(m.Payload) != 4 {
					continue
				}
				bits := msgqueue.SigMask(binary.BigEndian.Uint32([]byte(m.Payload)))
				select {
				case out <- bits:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	cancel := func() {
		close(done)
		_ = sub.Close()
	}
	return out, cancel, nil
}

func (f *RedisFanout) Close() error {
	return f.client.Close()
}
