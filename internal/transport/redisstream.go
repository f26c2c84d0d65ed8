package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/oriys/scalemq/internal/logging"
	"github.com/oriys/scalemq/internal/msgqueue"
	"github.com/oriys/scalemq/internal/socket"
)

// streamField is the single field name a Frame's bytes are stored
// under within a Redis Stream entry.
const streamField = "frame"

// RedisStreamTransport ferries Frames between a socket's queues and a
// Redis Stream, replacing the teacher's internal/triggers/redis_stream.go
// polling placeholder (a bare time.Ticker with no real client call) with
// a real go-redis XAdd/XReadGroup consumer loop.
type RedisStreamTransport struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	sock     *socket.Socket
	epID     socket.ID

	cancel context.CancelFunc
	done   chan struct{}
}

// StartRedisStream creates the stream's consumer group if needed and
// begins pumping: publishes every message sock.Send produces to the
// stream, and delivers every message read from the stream into
// sock.Recv.
func StartRedisStream(ctx context.Context, client *redis.Client, stream, group, consumer string, sock *socket.Socket) (*RedisStreamTransport, error) {
	if err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil {
		// BUSYGROUP means the group already exists — not an error for us.
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return nil, fmt.Errorf("transport: create consumer group: %w", err)
		}
	}

	epID := socket.NewID()
	e := sock.AddEndpoint(socket.Endpoint{ID: epID, Address: "redisstream://" + stream})
	sock.Bus.Wait(e)

	runCtx, cancel := context.WithCancel(ctx)
	t := &RedisStreamTransport{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		sock:     sock,
		epID:     epID,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go t.publishLoop(runCtx)
	go t.consumeLoop(runCtx)
	return t, nil
}

// publishLoop drains sock.Send and XAdds each frame to the stream.
func (t *RedisStreamTransport) publishLoop(ctx context.Context) {
	for {
		m, err := t.sock.Send.Get(msgqueue.NeverDeadline(), nil)
		if err != nil {
			return
		}
		frame, ok := m.(Frame)
		if !ok {
			continue
		}
		if err := t.client.XAdd(ctx, &redis.XAddArgs{
			Stream: t.stream,
			Values: map[string]interface{}{streamField: []byte(frame)},
		}).Err(); err != nil {
			logging.Op().Warn("transport: redis stream publish failed", "stream", t.stream, "err", err)
		}
	}
}

// consumeLoop reads new entries for this consumer group and enqueues
// them onto sock.Recv, acking each after a successful Put.
func (t *RedisStreamTransport) consumeLoop(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    t.group,
			Consumer: t.consumer,
			Streams:  []string{t.stream, ">"},
			Count:    32,
			Block:    time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			logging.Op().Warn("transport: redis stream read failed", "stream", t.stream, "err", err)
			time.Sleep(time.Second)
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				raw, _ := msg.Values[streamField].(string)
				if putErr := t.sock.Recv.Put(Frame(raw), msgqueue.NeverDeadline(), nil); putErr != nil {
					return
				}
				t.client.XAck(ctx, t.stream, t.group, msg.ID)
			}
		}
	}
}

// Close cancels the pump context, waits for the consume loop to exit, and
// removes the endpoint. The publish loop is not stopped by Close: it keeps
// taking messages from sock.Send until that queue is closed, and its XAdd
// calls after Close fail because their context is cancelled.
func (t *RedisStreamTransport) Close() error {
	t.cancel()
	<-t.done
	e := t.sock.RemoveEndpoint(socket.Endpoint{ID: t.epID})
	t.sock.Bus.Wait(e)
	return nil
}
