// Package eventlog durably persists socket lifecycle events (PIPE_ADD,
// PIPE_REM, ENDPOINT_ADD, ENDPOINT_REM, SOCKET_ERROR and delivered
// CAN_SEND/CAN_RECV samples) to Postgres for after-the-fact auditing —
// never the queued messages themselves, which stays this module's
// non-goal.
//
// Grounded on the teacher's internal/store/postgres.go: the same
// pgxpool.New + Ping + ensureSchema bring-up sequence, narrowed from a
// dozen FaaS tables down to the single table this domain needs.
package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oriys/scalemq/internal/logging"
)

// Store persists EventLogEntry records to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies connectivity, and ensures the schema
// exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("eventlog: postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: create postgres pool: %w", err)
	}

	s := &Store{pool: pool}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("eventlog: not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const stmt = `CREATE TABLE IF NOT EXISTS socket_events (
		id BIGSERIAL PRIMARY KEY,
		happened_at TIMESTAMPTZ NOT NULL,
		socket_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		endpoint_id TEXT,
		pipe_id TEXT,
		duration_us BIGINT NOT NULL DEFAULT 0,
		listener_n INTEGER NOT NULL DEFAULT 0,
		sticky_err TEXT
	)`
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("eventlog: ensure schema: %w", err)
	}
	const idx = `CREATE INDEX IF NOT EXISTS idx_socket_events_socket_time ON socket_events(socket_id, happened_at DESC)`
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("eventlog: ensure index: %w", err)
	}
	return nil
}

// Append writes a single event record. It is safe to call from the
// observability package's submit/deliver path directly — callers that
// can't tolerate the latency of a synchronous insert should route
// through a buffering Sink instead (see sink.go).
func (s *Store) Append(ctx context.Context, e *logging.EventLogEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO socket_events
			(happened_at, socket_id, event_type, endpoint_id, pipe_id, duration_us, listener_n, sticky_err)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ts, e.SocketID, e.EventType, e.EndpointID, e.PipeID, e.DurationUs, e.ListenerN, e.StickyErr)
	if err != nil {
		return fmt.Errorf("eventlog: append: %w", err)
	}
	return nil
}

// Recent returns the most recent events for a socket, newest first.
func (s *Store) Recent(ctx context.Context, socketID string, limit int) ([]*logging.EventLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT happened_at, socket_id, event_type, endpoint_id, pipe_id, duration_us, listener_n, sticky_err
		FROM socket_events
		WHERE socket_id = $1
		ORDER BY happened_at DESC
		LIMIT $2
	`, socketID, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: recent: %w", err)
	}
	defer rows.Close()

	var out []*logging.EventLogEntry
	for rows.Next() {
		var e logging.EventLogEntry
		var endpointID, pipeID, stickyErr *string
		if err := rows.Scan(&e.Timestamp, &e.SocketID, &e.EventType, &endpointID, &pipeID, &e.DurationUs, &e.ListenerN, &stickyErr); err != nil {
			return nil, fmt.Errorf("eventlog: scan: %w", err)
		}
		if endpointID != nil {
			e.EndpointID = *endpointID
		}
		if pipeID != nil {
			e.PipeID = *pipeID
		}
		if stickyErr != nil {
			e.StickyErr = *stickyErr
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: recent rows: %w", err)
	}
	return out, nil
}
