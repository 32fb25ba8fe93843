// Package storage is the PostgreSQL-backed event store for the remote
// collector: every ChangeEvent forwarded by a gwatch client, batched for
// throughput and flushed on a ticker.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// DefaultBatchSize is the maximum number of event rows held in-memory
	// before an automatic flush is triggered.
	DefaultBatchSize = 100

	// DefaultFlushInterval is how often the background goroutine flushes
	// pending events even when the batch has not yet reached
	// DefaultBatchSize.
	DefaultFlushInterval = 100 * time.Millisecond
)

// Event is one persisted ChangeEvent, attributed to the session and host
// that produced it.
type Event struct {
	EventID       string
	SessionID     string
	HostLabel     string
	VariableName  string
	PreviousValue uint64
	CurrentValue  uint64
	ObservedAt    time.Time
	ReceivedAt    time.Time
}

// EventQuery selects a page of events within a half-open time range,
// optionally narrowed to a single session or host.
type EventQuery struct {
	From, To  time.Time
	SessionID string
	HostLabel string
	Limit     int
	Offset    int
}

// Store is the PostgreSQL-backed storage layer for the gwatch collector.
//
// Ingestion is batched: callers enqueue individual Event values via
// BatchInsertEvents, which accumulates them in memory and flushes to the
// database either when the buffer reaches batchSize or when the background
// ticker fires, whichever comes first.
type Store struct {
	pool          *pgxpool.Pool
	mu            sync.Mutex
	batch         []Event
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// New opens a pgxpool connection to connStr, pings the database, and
// starts the background flush goroutine.
//
// batchSize ≤ 0 is replaced with DefaultBatchSize.
// flushInterval ≤ 0 is replaced with DefaultFlushInterval.
func New(ctx context.Context, connStr string, batchSize int, flushInterval time.Duration) (*Store, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pool.Ping: %w", err)
	}

	s := &Store{
		pool:          pool,
		batch:         make([]Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go s.flushLoop()
	return s, nil
}

// Close stops the background flush goroutine, flushes any remaining
// buffered events, and closes the connection pool. Safe to call more than
// once; subsequent calls are no-ops.
func (s *Store) Close(ctx context.Context) {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
		<-s.doneCh
		_ = s.Flush(ctx)
	}
	s.pool.Close()
}

func (s *Store) flushLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			_ = s.Flush(context.Background())
		}
	}
}

// BatchInsertEvents enqueues evt for deferred batch insertion. If the
// internal buffer reaches batchSize after appending, Flush is called
// synchronously before returning so that the caller observes back-pressure
// rather than unbounded memory growth.
func (s *Store) BatchInsertEvents(ctx context.Context, evt Event) error {
	s.mu.Lock()
	s.batch = append(s.batch, evt)
	full := len(s.batch) >= s.batchSize
	s.mu.Unlock()

	if full {
		return s.Flush(ctx)
	}
	return nil
}

// Flush drains the current event buffer and sends all rows to PostgreSQL
// in a single pgx.Batch round-trip. Rows that conflict on the primary key
// are silently ignored (idempotent replay support).
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return nil
	}
	toInsert := s.batch
	s.batch = make([]Event, 0, s.batchSize)
	s.mu.Unlock()

	const query = `
		INSERT INTO change_events
			(event_id, session_id, host_label, variable_name, previous_value, current_value, observed_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING`

	b := &pgx.Batch{}
	for i := range toInsert {
		e := &toInsert[i]
		b.Queue(query,
			e.EventID, e.SessionID, e.HostLabel, e.VariableName,
			int64(e.PreviousValue), int64(e.CurrentValue),
			e.ObservedAt, e.ReceivedAt,
		)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	for range toInsert {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec event: %w", err)
		}
	}
	return nil
}

// QueryEvents returns paginated events that fall within [q.From, q.To) on
// the received_at column, optionally filtered by session or host.
// q.Limit defaults to 100. Results are ordered by received_at DESC,
// event_id ASC.
func (s *Store) QueryEvents(ctx context.Context, q EventQuery) ([]Event, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}

	args := []any{q.From, q.To, q.Limit, q.Offset}
	where := "WHERE received_at >= $1 AND received_at < $2"
	argIdx := 5

	if q.SessionID != "" {
		where += fmt.Sprintf(" AND session_id = $%d", argIdx)
		args = append(args, q.SessionID)
		argIdx++
	}
	if q.HostLabel != "" {
		where += fmt.Sprintf(" AND host_label = $%d", argIdx)
		args = append(args, q.HostLabel)
		argIdx++ //nolint:ineffassign // reserved for future filters
	}

	sql := fmt.Sprintf(`
		SELECT event_id, session_id, host_label, variable_name,
		       previous_value, current_value, observed_at, received_at
		FROM   change_events
		%s
		ORDER  BY received_at DESC, event_id
		LIMIT  $3 OFFSET $4`, where)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var prev, cur int64
		err := rows.Scan(
			&e.EventID, &e.SessionID, &e.HostLabel, &e.VariableName,
			&prev, &cur, &e.ObservedAt, &e.ReceivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.PreviousValue = uint64(prev)
		e.CurrentValue = uint64(cur)
		events = append(events, e)
	}
	return events, rows.Err()
}
