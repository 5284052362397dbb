// Package kv holds round-robin cursors in an embedded Badger database for
// single-node deployments that do not want cursor writes on the state DB.
package kv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/martijn/sitecalm/internal/core/repository"
)

const (
	cursorKeyPrefix    = "cursor:"
	maxConflictRetries = 16
)

// CursorStore implements repository.CursorStore on Badger. Expiry is left to
// Badger's per-entry TTL; an expired cursor reads as missing and restarts.
type CursorStore struct {
	db *badger.DB
}

var _ repository.CursorStore = (*CursorStore)(nil)

// Open opens (or creates) the Badger directory at path. An empty path opens an
// in-memory store.
func Open(path string) (*CursorStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cursor store: %w", err)
	}
	return &CursorStore{db: db}, nil
}

// NewCursorStore wraps an already opened Badger database.
func NewCursorStore(db *badger.DB) *CursorStore {
	return &CursorStore{db: db}
}

// Next returns the current cursor for key and stores the following one.
// Concurrent writers on the same key conflict at commit and are retried.
func (s *CursorStore) Next(ctx context.Context, key string, size int, ttl time.Duration) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("cursor %s: size must be positive, got %d", key, size)
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var current int
		err := s.db.Update(func(txn *badger.Txn) error {
			k := []byte(cursorKeyPrefix + key)

			item, err := txn.Get(k)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				current = 0
			case err != nil:
				return fmt.Errorf("get cursor: %w", err)
			default:
				if err := item.Value(func(val []byte) error {
					if len(val) != 8 {
						return fmt.Errorf("corrupt cursor value of %d bytes", len(val))
					}
					current = int(binary.BigEndian.Uint64(val) % uint64(size))
					return nil
				}); err != nil {
					return err
				}
			}

			next := make([]byte, 8)
			binary.BigEndian.PutUint64(next, uint64((current+1)%size))
			return txn.SetEntry(badger.NewEntry(k, next).WithTTL(ttl))
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to advance cursor %s: %w", key, err)
		}
		return current, nil
	}

	return 0, fmt.Errorf("failed to advance cursor %s: %w", key, badger.ErrConflict)
}

func (s *CursorStore) Close() error {
	return s.db.Close()
}
