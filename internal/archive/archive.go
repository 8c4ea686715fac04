// Package archive persists finalized conversation transcripts to PostgreSQL
// so past sessions can be reviewed and searched. Archiving is optional: a
// nil *Store is a valid no-op receiver, used when no DSN is configured.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcript_segments (
    id          BIGSERIAL PRIMARY KEY,
    session_id  TEXT        NOT NULL,
    role        TEXT        NOT NULL,
    text        TEXT        NOT NULL,
    spoken_at   TIMESTAMPTZ NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS transcript_segments_session_idx
    ON transcript_segments (session_id, spoken_at);

CREATE INDEX IF NOT EXISTS transcript_segments_text_idx
    ON transcript_segments USING GIN (to_tsvector('english', text));
`

// Speaker roles stored with each segment.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Segment is one finalized utterance of a session.
type Segment struct {
	SessionID string
	Role      string
	Text      string
	SpokenAt  time.Time
}

// Store writes transcript segments to a transcript_segments table with a GIN
// full-text index. All methods are safe for concurrent use and safe on a nil
// receiver.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database at dsn, verifies the connection, and applies
// the idempotent schema. An empty dsn disables archiving and returns a nil
// Store with no error.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, nil
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Write appends one segment. No-op on a nil Store.
func (s *Store) Write(ctx context.Context, seg Segment) error {
	if s == nil {
		return nil
	}
	const q = `
		INSERT INTO transcript_segments (session_id, role, text, spoken_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, seg.SessionID, seg.Role, seg.Text, seg.SpokenAt); err != nil {
		return fmt.Errorf("archive: write segment: %w", err)
	}
	return nil
}

// Recent returns the newest segments of one session, oldest first.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Segment, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	const q = `
		SELECT session_id, role, text, spoken_at
		FROM   (SELECT session_id, role, text, spoken_at
		        FROM   transcript_segments
		        WHERE  session_id = $1
		        ORDER  BY spoken_at DESC
		        LIMIT  $2) newest
		ORDER  BY spoken_at`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	return collectSegments(rows)
}

// Search runs a full-text search over every archived session, newest first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Segment, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT session_id, role, text, spoken_at
		FROM   transcript_segments
		WHERE  to_tsvector('english', text) @@ plainto_tsquery('english', $1)
		ORDER  BY spoken_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: search: %w", err)
	}
	return collectSegments(rows)
}

// Ping reports database reachability for readiness checks. Nil stores are
// always ready.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool. Safe on nil.
func (s *Store) Close() {
	if s != nil {
		s.pool.Close()
	}
}

func collectSegments(rows pgx.Rows) ([]Segment, error) {
	segments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Segment, error) {
		var seg Segment
		err := row.Scan(&seg.SessionID, &seg.Role, &seg.Text, &seg.SpokenAt)
		return seg, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan segments: %w", err)
	}
	return segments, nil
}
