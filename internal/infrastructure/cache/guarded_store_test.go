package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martijn/sitecalm/pkg/config"
)

type flakyStore struct {
	err   error
	calls int
}

func (f *flakyStore) Next(ctx context.Context, key string, size int, ttl time.Duration) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.calls % size, nil
}

func (f *flakyStore) Close() error { return nil }

func TestGuardedStorePassesThrough(t *testing.T) {
	inner := &flakyStore{}
	store := NewGuardedStore(inner, config.BreakerConfig{FailureThreshold: 2}, zerolog.Nop())

	idx, err := store.Next(context.Background(), "k", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, gobreaker.StateClosed, store.State())
}

func TestGuardedStoreOpensAfterConsecutiveFailures(t *testing.T) {
	down := errors.New("database is locked")
	inner := &flakyStore{err: down}
	store := NewGuardedStore(inner, config.BreakerConfig{FailureThreshold: 2, Timeout: time.Hour}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := store.Next(context.Background(), "k", 3, time.Minute)
		assert.ErrorIs(t, err, down)
	}
	assert.Equal(t, gobreaker.StateOpen, store.State())

	_, err := store.Next(context.Background(), "k", 3, time.Minute)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the store")
}

func TestGuardedStoreIgnoresCanceledCallers(t *testing.T) {
	inner := &flakyStore{err: context.Canceled}
	store := NewGuardedStore(inner, config.BreakerConfig{FailureThreshold: 1}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, _ = store.Next(context.Background(), "k", 3, time.Minute)
	}
	assert.Equal(t, gobreaker.StateClosed, store.State())
}
