package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// Chain wraps handler with middlewares; the first middleware is outermost.
func Chain(handler shared.EventHandler, middlewares ...Middleware) shared.EventHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// RecoveryMiddleware turns a handler panic into an error.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic recovered",
						"event_type", event.EventType(),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs failures at error level and successes at debug.
func LoggingMiddleware(logger *slog.Logger, name string) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			attrs := []any{
				"handler", name,
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"duration", time.Since(start),
			}
			if err != nil {
				logger.Error("handler failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("handler completed", attrs...)
			}
			return err
		}
	}
}

// RetryMiddleware re-runs a failing handler with backoff. Handlers must be
// idempotent, which every observer in this module is.
func RetryMiddleware(r *retry.Retrier) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			return r.Do(context.Background(), func(context.Context) error {
				return next(event)
			})
		}
	}
}

// TimeoutMiddleware abandons a handler that runs longer than timeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			done := make(chan error, 1)
			go func() {
				done <- next(event)
			}()

			timer := time.NewTimer(timeout)
			defer timer.Stop()
			select {
			case err := <-done:
				return err
			case <-timer.C:
				return fmt.Errorf("handler timeout after %v", timeout)
			}
		}
	}
}

// DeadLetterMiddleware records events whose handler still failed after
// every inner middleware gave up.
func DeadLetterMiddleware(q *DeadLetterQueue, name string) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			err := next(event)
			if err != nil {
				q.Add(DeadLetterEntry{
					Event:       event,
					HandlerName: name,
					Error:       err,
					FailedAt:    time.Now(),
				})
			}
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// OBSERVER REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// ObserverConfig configures Observe.
type ObserverConfig struct {
	Logger      *slog.Logger
	Timeout     time.Duration
	Retrier     *retry.Retrier
	DeadLetters *DeadLetterQueue
}

// DefaultObserverConfig returns the chain used by the tracker binaries.
func DefaultObserverConfig(logger *slog.Logger) ObserverConfig {
	return ObserverConfig{
		Logger:      logger,
		Timeout:     5 * time.Second,
		Retrier:     retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithRetryIf(func(error) bool { return true }),
		),
		DeadLetters: NewDeadLetterQueue(100),
	}
}

// Observe wraps handler as recovery, logging, dead letter, retry, timeout
// (outermost first) under the given name.
func Observe(name string, handler shared.EventHandler, cfg ObserverConfig) shared.EventHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mws := []Middleware{RecoveryMiddleware(cfg.Logger), LoggingMiddleware(cfg.Logger, name)}
	if cfg.DeadLetters != nil {
		mws = append(mws, DeadLetterMiddleware(cfg.DeadLetters, name))
	}
	if cfg.Retrier != nil {
		mws = append(mws, RetryMiddleware(cfg.Retrier))
	}
	if cfg.Timeout > 0 {
		mws = append(mws, TimeoutMiddleware(cfg.Timeout))
	}
	return Chain(handler, mws...)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry represents a failed event.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	FailedAt    time.Time
}

// DeadLetterQueue keeps the most recent failed deliveries in memory.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a queue bounded to maxSize entries.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add appends an entry, dropping the oldest when full.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of the queued entries.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetterEntry(nil), q.entries...)
}

// Size returns the number of queued entries.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}
