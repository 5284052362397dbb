// Package cache puts a circuit breaker in front of a cursor store so a dead
// backend fails fast instead of holding every public request for its timeout.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/martijn/sitecalm/internal/core/repository"
	"github.com/martijn/sitecalm/internal/metrics"
	"github.com/martijn/sitecalm/pkg/config"
)

const breakerName = "cursor-store"

// GuardedStore implements repository.CursorStore around another store.
type GuardedStore struct {
	inner  repository.CursorStore
	cb     *gobreaker.CircuitBreaker[int]
	logger zerolog.Logger
}

var _ repository.CursorStore = (*GuardedStore)(nil)

// NewGuardedStore trips after cfg.FailureThreshold consecutive failures and
// probes again after cfg.Timeout.
func NewGuardedStore(inner repository.CursorStore, cfg config.BreakerConfig, logger zerolog.Logger) *GuardedStore {
	g := &GuardedStore{inner: inner, logger: logger}

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	metrics.CursorBreakerState.Set(0)

	g.cb = gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up is not the store failing
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("cursor store circuit breaker changed state")
			metrics.CursorBreakerState.Set(stateToFloat(to))
		},
	})

	return g
}

func (g *GuardedStore) Next(ctx context.Context, key string, size int, ttl time.Duration) (int, error) {
	return g.cb.Execute(func() (int, error) {
		return g.inner.Next(ctx, key, size, ttl)
	})
}

// State reports the breaker state, mainly for health output.
func (g *GuardedStore) State() gobreaker.State {
	return g.cb.State()
}

func (g *GuardedStore) Close() error {
	return g.inner.Close()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
