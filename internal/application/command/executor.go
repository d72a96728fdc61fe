// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"sync"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
	"github.com/classroom-hub/participation-tracker/pkg/retry"
	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTOR
// Every mutation of the classroom runs here: load -> mutate -> one atomic
// save -> publish. Mutations inside one process are serialized by a mutex;
// writers in other processes are detected by the store version and the
// loser reloads and reapplies its mutation.
// ══════════════════════════════════════════════════════════════════════════════

// Clock returns the current wall-clock time.
type Clock func() time.Time

// Change describes what a mutation did to the loaded classroom.
type Change struct {
	// Keys are the store keys to write. Empty means nothing to save.
	Keys []classroom.Key

	// Events are published after a successful save.
	Events []shared.Event
}

// Mutation changes the classroom in memory. It may be called more than once
// when a concurrent writer wins the version race, each time on a fresh copy.
type Mutation func(c *classroom.Classroom, now time.Time) (Change, error)

// ExecObserver receives the outcome of every executed mutation.
type ExecObserver func(op string, latency time.Duration, err error)

// Executor serializes classroom mutations.
type Executor struct {
	store     classroom.Store
	publisher shared.EventPublisher
	log       *logger.Logger
	clock     Clock
	retrier   *retry.Retrier
	observer  ExecObserver

	mu sync.Mutex
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock overrides the time source.
func WithClock(clock Clock) ExecutorOption {
	return func(e *Executor) {
		e.clock = clock
	}
}

// WithObserver registers a callback for every executed mutation.
func WithObserver(obs ExecObserver) ExecutorOption {
	return func(e *Executor) {
		e.observer = obs
	}
}

// WithRetrier overrides the conflict retry policy.
func WithRetrier(r *retry.Retrier) ExecutorOption {
	return func(e *Executor) {
		e.retrier = r
	}
}

// NewExecutor creates a new Executor. publisher may be nil.
func NewExecutor(store classroom.Store, publisher shared.EventPublisher, log *logger.Logger, opts ...ExecutorOption) *Executor {
	if log == nil {
		log = logger.Nop()
	}
	e := &Executor{
		store:     store,
		publisher: publisher,
		log:       log.With(logger.Component("executor")),
		clock:     timeutil.Now,
		retrier:   retry.ConflictRetrier(shared.IsConflict),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the executor's current time.
func (e *Executor) Now() time.Time {
	return e.clock()
}

// Execute runs a mutation and persists the keys it reports in a single write.
// On any error nothing is saved and the returned classroom is nil.
func (e *Executor) Execute(ctx context.Context, op string, mutate Mutation) (*classroom.Classroom, Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	var (
		result *classroom.Classroom
		change Change
	)

	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		c, err := e.load(ctx)
		if err != nil {
			return err
		}

		ch, err := mutate(c, e.clock())
		if err != nil {
			return err
		}

		if keys := uniqueKeys(ch.Keys); len(keys) > 0 {
			ch.Keys = keys
			values, err := c.Encode(keys...)
			if err != nil {
				return err
			}
			version, err := e.store.Save(ctx, c.Version, values)
			if err != nil {
				if shared.IsConflict(err) {
					e.log.Debug("classroom write lost version race, reloading",
						logger.Operation(op), logger.Version(c.Version))
					return err
				}
				return asStorageError("Save", err)
			}
			c.Version = version

			names := make([]string, len(keys))
			for i, k := range keys {
				names[i] = string(k)
			}
			e.log.Debug("classroom saved", logger.Operation(op), logger.Version(version), logger.StoreKeys(names))
		}

		result, change = c, ch
		return nil
	})

	if e.observer != nil {
		e.observer(op, time.Since(start), err)
	}

	if err != nil {
		if shared.IsStorageUnavailable(err) {
			e.log.Error("classroom not saved", logger.Operation(op), logger.Err(err))
		}
		return nil, Change{}, err
	}

	e.publish(result, change)
	return result, change, nil
}

// Read loads the classroom without taking the mutation lock.
func (e *Executor) Read(ctx context.Context) (*classroom.Classroom, error) {
	return e.load(ctx)
}

func (e *Executor) load(ctx context.Context) (*classroom.Classroom, error) {
	snap, err := e.store.Load(ctx, classroom.AllKeys...)
	if err != nil {
		return nil, asStorageError("Load", err)
	}
	c, err := classroom.Decode(snap)
	if err != nil {
		return nil, shared.StorageError("Decode", err)
	}
	return c, nil
}

// publish sends domain events and then one change notification.
// Delivery is best effort: a failed publish never undoes a saved write.
func (e *Executor) publish(c *classroom.Classroom, ch Change) {
	if e.publisher == nil {
		return
	}
	for _, ev := range ch.Events {
		if err := e.publisher.Publish(ev); err != nil {
			e.log.Warn("failed to publish event",
				logger.String("event_type", string(ev.EventType())), logger.Err(err))
		}
	}
	if len(ch.Keys) == 0 {
		return
	}
	changed := shared.NewStateChangedEvent(shared.DefaultClassroomID,
		classroom.KeyStrings(ch.Keys), c.Version, len(ch.Events))
	if err := e.publisher.Publish(changed); err != nil {
		e.log.Warn("failed to publish change notification", logger.Err(err))
	}
}

func asStorageError(op string, err error) error {
	if shared.IsStorageUnavailable(err) || shared.IsConflict(err) {
		return err
	}
	return shared.StorageError(op, err)
}

func uniqueKeys(keys []classroom.Key) []classroom.Key {
	seen := make(map[classroom.Key]struct{}, len(keys))
	out := make([]classroom.Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
