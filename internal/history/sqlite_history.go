// Package history provides a WAL-mode SQLite-backed local record of every
// ChangeEvent observed during a trace session. Unlike a delivery queue it
// has no Ack/Dequeue lifecycle: rows are append-only and exist purely for
// later inspection (e.g. "what did counter do across the last run").
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver with database/sql
)

// Record is one persisted ChangeEvent, timestamped at the moment it was
// observed by the tracer.
type Record struct {
	ID            int64
	SessionID     string
	VariableName  string
	PreviousValue uint64
	CurrentValue  uint64
	ObservedAt    time.Time
}

// Store is a WAL-mode SQLite-backed append-only history of ChangeEvents.
// It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path, enables WAL journal
// mode, and applies the schema. If path is ":memory:", an in-memory
// database is used; this is suitable for tests but loses all data when
// closed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}

	// SQLite allows only one writer at a time; a single connection avoids
	// "database is locked" errors under concurrent Record calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}

	// NORMAL synchronous: durable across application crashes; not OS crashes.
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set synchronous = NORMAL: %w", err)
	}

	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

const ddl = `
CREATE TABLE IF NOT EXISTS change_event (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id     TEXT    NOT NULL,
    variable_name  TEXT    NOT NULL,
    previous_value INTEGER NOT NULL,
    current_value  INTEGER NOT NULL,
    observed_at    TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_change_event_session
    ON change_event (session_id, id);
`

// Record persists one ChangeEvent under sessionID, stamped at observedAt.
func (s *Store) Record(ctx context.Context, sessionID, variableName string, previous, current uint64, observedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO change_event (session_id, variable_name, previous_value, current_value, observed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, variableName, int64(previous), int64(current), observedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Session returns every recorded change event for sessionID in the order
// they were observed.
func (s *Store) Session(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, variable_name, previous_value, current_value, observed_at
		 FROM   change_event
		 WHERE  session_id = ?
		 ORDER  BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("history: session query: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r        Record
			prev, cur int64
			tsStr    string
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.VariableName, &prev, &cur, &tsStr); err != nil {
			return nil, fmt.Errorf("history: session scan: %w", err)
		}
		r.PreviousValue = uint64(prev)
		r.CurrentValue = uint64(cur)
		r.ObservedAt, err = time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			r.ObservedAt, _ = time.Parse(time.RFC3339, tsStr)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: session rows: %w", err)
	}
	return records, nil
}

// Close closes the underlying database connection. Subsequent calls to any
// method are undefined after Close returns.
func (s *Store) Close() error {
	return s.db.Close()
}
