package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/classroom-hub/participation-tracker/config"
	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/persistence/badger"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/persistence/postgres"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/persistence/redis"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
)

// Backend bundles the opened store and the connections other components
// share (event log, summary cache, event bridge).
type Backend struct {
	// Name is the configured backend: badger, postgres or redis.
	Name string

	// Store is the classroom store. Remote backends are wrapped in a GuardedStore.
	Store classroom.Store

	// Postgres is set when the backend is postgres.
	Postgres *postgres.Connection

	// Redis is set when the backend is redis or the cache/bridge is enabled.
	Redis *goredis.Client

	health HealthRecorder
}

// Open connects to the configured backend. Callers must Close the result.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, health HealthRecorder) (*Backend, error) {
	if log == nil {
		log = logger.Nop()
	}
	b := &Backend{Name: cfg.Store.Backend, health: health}

	if cfg.RedisRequired() {
		client, err := redis.NewClient(ctx, redisConfig(cfg))
		if err != nil {
			if cfg.Store.Backend == config.BackendRedis {
				return nil, fmt.Errorf("open redis store: %w", err)
			}
			// The cache and the bridge are optional.
			log.Warn("redis unavailable, continuing without cache and event bridge", logger.Err(err))
		} else {
			b.Redis = client
		}
	}

	guardOpts := []GuardOption{WithHealthRecorder(health)}
	if health == nil {
		guardOpts = nil
	}

	switch cfg.Store.Backend {
	case config.BackendBadger:
		bcfg := badger.DefaultConfig(cfg.Badger.Path)
		bcfg.InMemory = cfg.Badger.InMemory
		bcfg.SyncWrites = cfg.Badger.SyncWrites
		bcfg.GCInterval = cfg.Badger.GCInterval
		bcfg.Logger = slog.Default().With("component", "badger")
		store, err := badger.Open(bcfg)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		b.Store = store

	case config.BackendPostgres:
		conn, err := openPostgres(ctx, cfg)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		b.Postgres = conn
		if cfg.Postgres.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				b.Close()
				return nil, err
			}
		}
		b.Store = NewGuardedStore(postgres.NewDocumentStore(conn, cfg.Store.ClassroomID), config.BackendPostgres, log, guardOpts...)

	case config.BackendRedis:
		prefix := cfg.Redis.KeyPrefix + cfg.Store.ClassroomID + ":"
		b.Store = NewGuardedStore(redis.NewDocumentStore(b.Redis, prefix), config.BackendRedis, log, guardOpts...)

	default:
		b.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	log.Info("classroom store opened", logger.String("backend", b.Name))
	return b, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	pcfg := postgres.DefaultConfig()
	pcfg.URL = cfg.Postgres.URL
	pcfg.Host = cfg.Postgres.Host
	pcfg.Port = cfg.Postgres.Port
	pcfg.Database = cfg.Postgres.Database
	pcfg.User = cfg.Postgres.User
	pcfg.Password = cfg.Postgres.Password
	pcfg.SSLMode = cfg.Postgres.SSLMode
	if cfg.Postgres.MaxConns > 0 {
		pcfg.MaxConns = cfg.Postgres.MaxConns
	}
	return postgres.Open(ctx, pcfg)
}

func redisConfig(cfg *config.Config) redis.Config {
	rcfg := redis.DefaultConfig()
	rcfg.Host = cfg.Redis.Host
	rcfg.Port = cfg.Redis.Port
	rcfg.Password = cfg.Redis.Password
	rcfg.DB = cfg.Redis.DB
	rcfg.KeyPrefix = cfg.Redis.KeyPrefix
	if cfg.Redis.PoolSize > 0 {
		rcfg.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.DialTimeout > 0 {
		rcfg.DialTimeout = cfg.Redis.DialTimeout
	}
	return rcfg
}

// Ping checks the store and records the result.
func (b *Backend) Ping(ctx context.Context) error {
	err := b.Store.Ping(ctx)
	if _, guarded := b.Store.(*GuardedStore); !guarded && b.health != nil {
		b.health.StoreUp(b.Name, err == nil)
	}
	return err
}

// Close releases every connection the backend opened.
func (b *Backend) Close() error {
	var errs []error
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.Postgres != nil {
		b.Postgres.Close()
	}
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
