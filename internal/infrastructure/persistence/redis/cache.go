// Package redis implements the Redis-backed classroom store, the summary
// cache and the Pub/Sub transport used by the distributed event bus.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/classroom-hub/participation-tracker/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Config describes one Redis server shared by the store, the cache and the
// event bus. KeyPrefix namespaces everything the tracker writes.
type Config struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig targets localhost:6379, database 0.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		KeyPrefix:    "participation-tracker:",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr is host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		ClientName:   "participation-tracker",
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// NewClient connects and pings within DialTimeout.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(cfg.options())

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheConnection, cfg.Addr(), err)
	}
	return client, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY CACHE
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrCacheMiss          = errors.New("cache: miss")
	ErrCacheConnection    = errors.New("cache: redis unreachable")
	ErrCacheSerialization = errors.New("cache: cannot encode value")
	ErrCacheKeyEmpty      = errors.New("cache: empty key")
	ErrCacheNilValue      = errors.New("cache: nil value")
)

// Cache keeps JSON-encoded read models (the class summary) for a TTL.
// Writers delete the keys they invalidate.
type Cache struct {
	client redis.UniversalClient
	prefix string
}

// NewCache namespaces every key under prefix.
func NewCache(client redis.UniversalClient, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Set stores value under key for ttl. A zero ttl keeps it until deleted.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	switch {
	case key == "":
		return ErrCacheKeyEmpty
	case value == nil:
		return ErrCacheNilValue
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Join(ErrCacheSerialization, err)
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

// Get decodes the value under key into dest, or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// A value written by an older build is treated as absent.
		_ = c.client.Del(ctx, c.prefix+key).Err()
		return ErrCacheMiss
	}
	return nil
}

// Delete drops keys. Absent keys are fine.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.prefix+k)
	}
	return c.client.Del(ctx, full...).Err()
}

// Ping checks that Redis answers.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB
// ══════════════════════════════════════════════════════════════════════════════

// PubSub is the messaging.RedisClient the event bus fans out through.
type PubSub struct {
	client redis.UniversalClient
	subs   []*redis.PubSub
}

// NewPubSub shares client with the store and the cache.
func NewPubSub(client redis.UniversalClient) *PubSub {
	return &PubSub{client: client}
}

// Publish sends message on channel.
func (p *PubSub) Publish(ctx context.Context, channel string, message any) error {
	if channel == "" {
		return ErrCacheKeyEmpty
	}
	return p.client.Publish(ctx, channel, message).Err()
}

// Subscribe confirms the subscription, then forwards messages until ctx is
// done or the subscription is closed.
func (p *PubSub) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	sub := p.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}
	p.subs = append(p.subs, sub)

	out := make(chan messaging.RedisMessage)
	go forward(ctx, sub.Channel(), out)
	return out, nil
}

func forward(ctx context.Context, in <-chan *redis.Message, out chan<- messaging.RedisMessage) {
	defer close(out)
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			msg = m
		}
		select {
		case out <- messaging.RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
		case <-ctx.Done():
			return
		}
	}
}

// Close ends every subscription. The client belongs to the caller.
func (p *PubSub) Close() error {
	var errs []error
	for _, s := range p.subs {
		errs = append(errs, s.Close())
	}
	p.subs = nil
	return errors.Join(errs...)
}
