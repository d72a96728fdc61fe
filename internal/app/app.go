// Package app assembles the participation tracker from configuration:
// store backend, event bus, observers, command and query handlers.
// The CLI and the worker build on the same App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/classroom-hub/participation-tracker/config"
	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/application/eventhandler"
	"github.com/classroom-hub/participation-tracker/internal/application/query"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/messaging"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/metrics"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/persistence"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/persistence/postgres"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/persistence/redis"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Options controls how the application is assembled.
type Options struct {
	Config *config.Config

	// Logger is used by command handlers and the store.
	Logger *logger.Logger

	// Slog is used by the event bus and the observers.
	Slog *slog.Logger

	// Recorder turns on Prometheus observers. Nil leaves metrics off.
	Recorder *metrics.Recorder

	// AsyncEvents runs local event handlers on the bus worker pool.
	// The CLI keeps it off so observers finish before the process exits.
	AsyncEvents bool

	// Random and Clock replace the defaults in tests.
	Random session.RandomSource
	Clock  func() time.Time
}

// eventBus is what both bus implementations provide.
type eventBus interface {
	shared.EventBus
	Close() error
}

// ══════════════════════════════════════════════════════════════════════════════
// APP
// ══════════════════════════════════════════════════════════════════════════════

// App holds the wired components.
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Backend  *persistence.Backend
	Bus      shared.EventBus
	Commands *command.Handlers
	Queries  *query.Handlers
	Selector *session.Selector

	// EventLog is set for the postgres backend with the audit log enabled.
	EventLog *postgres.EventLog

	// StateObserver tracks the last classroom.changed seen by this process.
	StateObserver *eventhandler.OnStateChangedHandler

	// DeadLetters keeps events whose observers kept failing.
	DeadLetters *messaging.DeadLetterQueue

	bus eventBus
}

// New opens the configured store and wires everything on top of it.
// The caller must Close the result.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	slogger := opts.Slog
	if slogger == nil {
		slogger = slog.Default()
	}
	if cfg.App.Location != nil {
		timeutil.SetLocation(cfg.App.Location)
	}

	var health persistence.HealthRecorder
	if opts.Recorder != nil {
		health = opts.Recorder
	}
	backend, err := persistence.Open(ctx, cfg, log, health)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: log, Backend: backend}

	bus, err := newBus(cfg, backend, slogger, opts.AsyncEvents)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	a.bus = bus
	a.Bus = bus

	// ─── Command side ────────────────────────────────────────────────────────
	strategy, err := session.ParseStrategy(cfg.Selection.Strategy)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("selection strategy: %w", err)
	}
	rnd := opts.Random
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	selector, err := session.NewSelector(strategy, rnd)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Selector = selector

	var execOpts []command.ExecutorOption
	if opts.Clock != nil {
		execOpts = append(execOpts, command.WithClock(opts.Clock))
	}
	if opts.Recorder != nil {
		execOpts = append(execOpts, command.WithObserver(opts.Recorder.ObserveMutation))
	}
	exec := command.NewExecutor(backend.Store, bus, log, execOpts...)
	a.Commands = command.NewHandlers(exec, selector, GradeLevels(cfg), uuid.NewString, log)

	// ─── Query side ──────────────────────────────────────────────────────────
	var cache query.Cache
	if backend.Redis != nil && !cfg.Redis.Disabled {
		cache = redis.NewCache(backend.Redis, cfg.Redis.KeyPrefix+cfg.Store.ClassroomID+":cache:")
	}
	a.Queries = query.NewHandlers(exec, cache, opts.Clock)

	// ─── Observers ───────────────────────────────────────────────────────────
	if err := a.registerObservers(slogger, opts.Recorder); err != nil {
		_ = a.Close()
		return nil, err
	}

	log.Info("participation tracker assembled",
		logger.String("backend", backend.Name),
		logger.String("strategy", string(strategy)),
		logger.Bool("summary_cache", cache != nil),
		logger.Bool("audit_log", a.EventLog != nil),
	)
	return a, nil
}

func newBus(cfg *config.Config, backend *persistence.Backend, log *slog.Logger, async bool) (eventBus, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = log
	local.AsyncMode = async

	if backend.Redis == nil || cfg.Redis.Disabled || !cfg.Features.IsEnabled(config.FeatureEventBridge) {
		return messaging.NewInMemoryEventBus(local), nil
	}

	bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:         redis.NewPubSub(backend.Redis),
		ChannelName:    cfg.Redis.EventChannel,
		LocalBusConfig: local,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("start event bridge: %w", err)
	}
	return bus, nil
}

func (a *App) registerObservers(log *slog.Logger, recorder *metrics.Recorder) error {
	obsCfg := messaging.DefaultObserverConfig(log)
	a.DeadLetters = obsCfg.DeadLetters

	var metricsHandler *eventhandler.MetricsHandler
	if recorder != nil {
		metricsHandler = eventhandler.NewMetricsHandler(recorder)
	}
	a.StateObserver = eventhandler.NewOnStateChangedHandler(a.Queries.Summary, log, eventhandler.DefaultStateChangedConfig())
	if err := eventhandler.Register(a.Bus, metricsHandler, a.StateObserver); err != nil {
		return err
	}

	if a.Backend.Postgres != nil && a.Config.Features.IsEnabled(config.FeatureEventLog) {
		a.EventLog = postgres.NewEventLog(a.Backend.Postgres, a.Config.Store.ClassroomID)
		if err := a.Bus.SubscribeAll(messaging.Observe("event_log", a.EventLog.Handle, obsCfg)); err != nil {
			return fmt.Errorf("subscribe event log: %w", err)
		}
	}
	return nil
}

// Ping checks the store.
func (a *App) Ping(ctx context.Context) error {
	return a.Backend.Ping(ctx)
}

// Close stops the bus and closes the store connections.
func (a *App) Close() error {
	var errs []error
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Backend != nil {
		if err := a.Backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GradeLevels converts the configured levels for the grade filter cycle.
func GradeLevels(cfg *config.Config) []shared.Grade {
	levels := make([]shared.Grade, 0, len(cfg.Selection.GradeLevels))
	for _, g := range cfg.Selection.GradeLevels {
		levels = append(levels, shared.Grade(g))
	}
	return levels
}
