// Package persistence opens the configured classroom store and guards
// remote backends with a circuit breaker.
package persistence

import (
	"context"
	"errors"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/pkg/circuitbreaker"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
	"github.com/classroom-hub/participation-tracker/pkg/retry"
)

// HealthRecorder receives store health observations.
type HealthRecorder interface {
	StoreUp(backend string, up bool)
}

// GuardedStore wraps a classroom.Store with a circuit breaker. Reads are
// retried on transient failures. Writes are never retried here: a write
// whose reply was lost may have committed, and replaying it blindly would
// apply the mutation twice. The executor reloads on a stale version instead.
type GuardedStore struct {
	inner   classroom.Store
	backend string
	breaker *circuitbreaker.Breaker
	reads   *retry.Retrier
	health  HealthRecorder
	log     *logger.Logger
}

// GuardOption configures a GuardedStore.
type GuardOption func(*GuardedStore)

// WithReadRetrier overrides the retry policy for Load and Ping.
func WithReadRetrier(r *retry.Retrier) GuardOption {
	return func(g *GuardedStore) {
		g.reads = r
	}
}

// WithHealthRecorder reports Ping results.
func WithHealthRecorder(h HealthRecorder) GuardOption {
	return func(g *GuardedStore) {
		g.health = h
	}
}

// WithBreaker replaces the default store breaker.
func WithBreaker(cb *circuitbreaker.Breaker) GuardOption {
	return func(g *GuardedStore) {
		g.breaker = cb
	}
}

// NewGuardedStore wraps inner. backend names the store in logs and metrics.
func NewGuardedStore(inner classroom.Store, backend string, log *logger.Logger, opts ...GuardOption) *GuardedStore {
	if log == nil {
		log = logger.Nop()
	}
	g := &GuardedStore{
		inner:   inner,
		backend: backend,
		reads:   retry.StoreRetrier(),
		log:     log.With(logger.Component("store"), logger.String("backend", backend)),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = circuitbreaker.StoreBreaker(backend, isOutage, g.onStateChange)
	}
	return g
}

// isOutage decides which errors count against the breaker. A lost
// version race means the store is healthy.
func isOutage(err error) bool {
	if err == nil || shared.IsConflict(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func (g *GuardedStore) onStateChange(name string, from, to circuitbreaker.State) {
	g.log.Warn("store circuit breaker changed state",
		logger.String("breaker", name),
		logger.String("from", from.String()),
		logger.String("to", to.String()))
	if g.health != nil {
		g.health.StoreUp(g.backend, to != circuitbreaker.StateOpen)
	}
}

// Load reads keys through the breaker, retrying transient failures.
func (g *GuardedStore) Load(ctx context.Context, keys ...classroom.Key) (classroom.Snapshot, error) {
	var snap classroom.Snapshot
	err := g.reads.Do(ctx, func(ctx context.Context) error {
		err := g.breaker.Execute(ctx, func(ctx context.Context) error {
			s, err := g.inner.Load(ctx, keys...)
			if err != nil {
				return err
			}
			snap = s
			return nil
		})
		return g.classify(err)
	})
	if err != nil {
		return classroom.Snapshot{}, g.storageError("Load", err)
	}
	return snap, nil
}

// Save writes through the breaker exactly once.
func (g *GuardedStore) Save(ctx context.Context, expectedVersion int64, values map[classroom.Key][]byte) (int64, error) {
	var version int64
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := g.inner.Save(ctx, expectedVersion, values)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, g.storageError("Save", err)
	}
	return version, nil
}

// Ping checks the backend and updates the health gauge.
func (g *GuardedStore) Ping(ctx context.Context) error {
	err := g.breaker.Execute(ctx, g.inner.Ping)
	if g.health != nil {
		g.health.StoreUp(g.backend, err == nil)
	}
	if err != nil {
		return g.storageError("Ping", err)
	}
	return nil
}

// Close closes the wrapped store.
func (g *GuardedStore) Close() error {
	return g.inner.Close()
}

// Backend returns the backend name.
func (g *GuardedStore) Backend() string {
	return g.backend
}

// BreakerState returns the current breaker state.
func (g *GuardedStore) BreakerState() circuitbreaker.State {
	return g.breaker.State()
}

// classify marks errors worth another read attempt.
func (g *GuardedStore) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, circuitbreaker.ErrCircuitOpen),
		errors.Is(err, circuitbreaker.ErrTooManyRequests),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		shared.IsConflict(err):
		return retry.Permanent(err)
	default:
		return retry.Retryable(err)
	}
}

func (g *GuardedStore) storageError(op string, err error) error {
	if shared.IsConflict(err) || shared.IsStorageUnavailable(err) {
		return err
	}
	return shared.StorageError(op, err)
}
