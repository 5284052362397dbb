package repository

import (
	"context"
	"time"
)

// CursorStore holds rotating per-key counters shared by every server process.
type CursorStore interface {
	// Next atomically returns the current cursor for key, wrapped into
	// [0, size), and advances it by one. A cursor unused for ttl starts
	// over at 0.
	Next(ctx context.Context, key string, size int, ttl time.Duration) (int, error)
	Close() error
}
