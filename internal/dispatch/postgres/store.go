// Package postgres persists dispatched memories in PostgreSQL.
//
// The store shares the connection pool of the profile store; it only needs
// plain pgx and adds a generated tsvector column so memories can be searched
// by text later.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/hearken/internal/dispatch"
)

var _ dispatch.MemoryStore = (*Store)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS memories (
    id          TEXT         PRIMARY KEY,
    user_id     TEXT         NOT NULL,
    segment_id  TEXT         NOT NULL DEFAULT '',
    kind        TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    summary     TEXT         NOT NULL DEFAULT '',
    importance  DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ  NOT NULL,
    search      tsvector     GENERATED ALWAYS AS (to_tsvector('simple', text)) STORED
)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_user_time ON memories (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_search ON memories USING gin (search)`,
}

// Migrate creates the memories table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("memories postgres: migrate: %w", err)
		}
	}
	return nil
}

// Store implements [dispatch.MemoryStore].
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore migrates and returns a store on pool. The caller owns pool.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := Migrate(ctx, pool); err != nil {
		return nil, err
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// Store inserts m. Missing ids and timestamps are filled in.
func (s *Store) Store(ctx context.Context, m dispatch.Memory) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.At.IsZero() {
		m.At = s.now()
	}
	if m.Kind == "" {
		m.Kind = dispatch.MemoryFull
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO memories (id, user_id, segment_id, kind, text, summary, importance, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.UserID, m.SegmentID, string(m.Kind), m.Text, m.Summary, m.Importance, m.At)
	if err != nil {
		return fmt.Errorf("memories postgres: store: %w", err)
	}
	return nil
}

// Recent returns up to limit memories for userID, newest first.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]dispatch.Memory, error) {
	return s.query(ctx, `
SELECT id, user_id, segment_id, kind, text, summary, importance, created_at
FROM memories WHERE user_id = $1
ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

// Search returns memories of userID whose text matches query, best match
// first.
func (s *Store) Search(ctx context.Context, userID, query string, limit int) ([]dispatch.Memory, error) {
	return s.query(ctx, `
SELECT id, user_id, segment_id, kind, text, summary, importance, created_at
FROM memories
WHERE user_id = $1 AND search @@ plainto_tsquery('simple', $2)
ORDER BY ts_rank(search, plainto_tsquery('simple', $2)) DESC, created_at DESC
LIMIT $3`, userID, query, limit)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]dispatch.Memory, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("memories postgres: query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dispatch.Memory, error) {
		var (
			m    dispatch.Memory
			kind string
		)
		err := row.Scan(&m.ID, &m.UserID, &m.SegmentID, &kind, &m.Text, &m.Summary, &m.Importance, &m.At)
		m.Kind = dispatch.MemoryKind(kind)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("memories postgres: scan: %w", err)
	}
	return out, nil
}
