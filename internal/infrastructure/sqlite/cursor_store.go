package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/martijn/sitecalm/internal/core/repository"
)

// cursorStore keeps round-robin cursors in the state database so that every
// server process sharing it rotates through the same sequence.
type cursorStore struct {
	db  *DB
	now func() time.Time
}

func NewCursorStore(db *DB) repository.CursorStore {
	return &cursorStore{db: db, now: time.Now}
}

// Next runs as a single upsert, so concurrent callers are serialized by
// SQLite's write lock and never observe the same value. The stored value is
// the served index plus one, which keeps a fresh row and an expired row on
// the same path.
func (s *cursorStore) Next(ctx context.Context, key string, size int, ttl time.Duration) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("cursor %s: size must be positive, got %d", key, size)
	}

	now := s.now()
	expiresAt := now.Add(ttl).UnixNano()

	var value int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rr_cursor (key, value, expires_at) VALUES (?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = CASE
				WHEN rr_cursor.expires_at <= ? THEN 1
				ELSE (rr_cursor.value % ?) + 1
			END,
			expires_at = excluded.expires_at
		RETURNING value
	`, key, expiresAt, now.UnixNano(), size).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to advance cursor %s: %w", key, err)
	}

	return (value - 1) % size, nil
}

// Close is a no-op; the database is owned by the caller.
func (s *cursorStore) Close() error {
	return nil
}
