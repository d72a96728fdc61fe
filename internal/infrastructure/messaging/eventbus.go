// Package messaging delivers domain events to in-process observers and,
// optionally, to other tracker processes over Redis Pub/Sub.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus fans events out to subscribed handlers inside one process.
// Handlers run after the store write has committed, so a failing handler
// never affects persisted state.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *slog.Logger
	stats       *BusStats
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on a bounded worker pool instead of the publisher's goroutine.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent async handlers.
	WorkerPoolSize int

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultInMemoryEventBusConfig returns the defaults used by the tracker binaries.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 4
	}

	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		logger:     config.Logger.With("component", "event_bus"),
		stats:      newBusStats(),
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("subscribed handler", "event_type", eventType)
	return nil
}

// SubscribeAll registers a handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish delivers the event. Handler errors are logged, never returned.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	b.stats.recordPublish(event.EventType())
	if len(handlers) == 0 {
		return nil
	}

	for _, handler := range handlers {
		if b.asyncMode {
			b.executeAsync(event, handler)
			continue
		}
		if err := b.execute(event, handler); err != nil {
			b.logger.Error("handler error", "event_type", event.EventType(), "error", err)
		}
	}
	return nil
}

func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}

		if err := b.execute(event, handler); err != nil {
			b.logger.Error("async handler error", "event_type", event.EventType(), "error", err)
		}
	}()
}

func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		b.stats.recordHandler(time.Since(start), err == nil)
	}()
	return handler(event)
}

// Drain waits for in-flight async handlers without closing the bus.
func (b *InMemoryEventBus) Drain() {
	b.wg.Wait()
}

// Close stops accepting events and waits for pending handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	close(b.closeCh)
	b.logger.Info("event bus closed")
	return nil
}

// Stats returns a snapshot of bus counters.
func (b *InMemoryEventBus) Stats() BusStatsSnapshot {
	return b.stats.snapshot()
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisEventBus publishes every event to a Redis channel as well as to local
// handlers, and replays events published by other instances locally. The
// worker process uses it to observe mutations made by the CLI or HTTP server.
type RedisEventBus struct {
	client      RedisClient
	localBus    *InMemoryEventBus
	channelName string
	instanceID  string
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

// RedisClient is the subset of Pub/Sub used by RedisEventBus.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage is one message received from Pub/Sub.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName defaults to "participation-tracker:events".
	ChannelName string

	// InstanceID filters out this process's own messages.
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig

	Logger *slog.Logger
}

// DefaultEventChannel is the Pub/Sub channel used when none is configured.
const DefaultEventChannel = "participation-tracker:events"

// NewRedisEventBus creates the bus and starts listening.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = DefaultEventChannel
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		client:      config.Client,
		localBus:    NewInMemoryEventBus(config.LocalBusConfig),
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		logger:      config.Logger.With("component", "redis_event_bus"),
		ctx:         ctx,
		cancel:      cancel,
	}

	messages, err := bus.client.Subscribe(ctx, bus.channelName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", bus.channelName, err)
	}
	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.subscriptionLoop(messages)
	}()

	return bus, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish sends the event to Redis and to local handlers. A Redis failure
// is logged; local delivery still happens.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	data, err := EncodeEnvelope(event, b.instanceID)
	if err != nil {
		return err
	}
	if err := b.client.Publish(b.ctx, b.channelName, string(data)); err != nil {
		b.logger.Error("failed to publish to redis", "event_type", event.EventType(), "error", err)
	}

	return b.localBus.Publish(event)
}

func (b *RedisEventBus) subscriptionLoop(messages <-chan RedisMessage) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.logger.Error("redis subscription error", "error", msg.Err)
				continue
			}
			b.handleRedisMessage(msg)
		}
	}
}

func (b *RedisEventBus) handleRedisMessage(msg RedisMessage) {
	env, event, err := DecodeEnvelope([]byte(msg.Payload))
	if err != nil {
		b.logger.Error("failed to decode event", "error", err)
		return
	}
	if env.Source == b.instanceID {
		return
	}
	if err := b.localBus.Publish(event); err != nil {
		b.logger.Error("failed to process remote event", "event_type", env.Type, "error", err)
	}
}

// Close stops the listener and the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	if err := b.localBus.Close(); err != nil {
		b.logger.Error("failed to close local bus", "error", err)
	}
	return b.client.Close()
}

// Stats returns the local bus counters.
func (b *RedisEventBus) Stats() BusStatsSnapshot {
	return b.localBus.Stats()
}

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// EncodeEnvelope wraps an event for transport.
func EncodeEnvelope(event shared.Event, source string) ([]byte, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	env := shared.EventEnvelope{
		ID:          uuid.NewString(),
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Source:      source,
		Payload:     payload,
	}
	if base, ok := baseOf(event); ok {
		env.Version = base.Version
		env.CorrelationID = base.CorrelationID
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope restores an event received from another instance.
// The event keeps its type and payload; the concrete Go type is not restored.
func DecodeEnvelope(data []byte) (shared.EventEnvelope, shared.Event, error) {
	var env shared.EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return env, nil, errors.New("envelope without event type")
	}

	payload := map[string]interface{}{}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return env, nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}

	event := RemoteEvent{
		BaseEvent: shared.BaseEvent{
			Type:          env.Type,
			Timestamp:     env.Timestamp,
			AggregateId:   env.AggregateID,
			Version:       env.Version,
			CorrelationID: env.CorrelationID,
		},
		Data:   payload,
		Source: env.Source,
	}
	return env, event, nil
}

// RemoteEvent is an event replayed from another process.
type RemoteEvent struct {
	shared.BaseEvent
	Data   map[string]interface{}
	Source string
}

// Payload implements shared.Event.
func (e RemoteEvent) Payload() map[string]interface{} {
	return e.Data
}

func baseOf(event shared.Event) (shared.BaseEvent, bool) {
	switch e := event.(type) {
	case shared.StudentSelectedEvent:
		return e.BaseEvent, true
	case shared.PoolRefilledEvent:
		return e.BaseEvent, true
	case shared.OutcomeRecordedEvent:
		return e.BaseEvent, true
	case shared.AbsenceEvent:
		return e.BaseEvent, true
	case shared.ResetEvent:
		return e.BaseEvent, true
	case shared.ConnectionRecordedEvent:
		return e.BaseEvent, true
	case shared.ClassroomEvent:
		return e.BaseEvent, true
	case shared.StateChangedEvent:
		return e.BaseEvent, true
	case RemoteEvent:
		return e.BaseEvent, true
	default:
		return shared.BaseEvent{}, false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// BusStats counts published events and handler runs.
type BusStats struct {
	mu               sync.Mutex
	published        map[shared.EventType]int64
	handlerRuns      int64
	handlerFailures  int64
	handlerTotalTime time.Duration
}

func newBusStats() *BusStats {
	return &BusStats{published: make(map[shared.EventType]int64)}
}

func (s *BusStats) recordPublish(t shared.EventType) {
	s.mu.Lock()
	s.published[t]++
	s.mu.Unlock()
}

func (s *BusStats) recordHandler(d time.Duration, ok bool) {
	s.mu.Lock()
	s.handlerRuns++
	s.handlerTotalTime += d
	if !ok {
		s.handlerFailures++
	}
	s.mu.Unlock()
}

func (s *BusStats) snapshot() BusStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := BusStatsSnapshot{
		HandlerRuns:     s.handlerRuns,
		HandlerFailures: s.handlerFailures,
		Published:       make(map[shared.EventType]int64, len(s.published)),
	}
	for t, n := range s.published {
		snap.Published[t] = n
		snap.TotalPublished += n
	}
	if s.handlerRuns > 0 {
		snap.AverageHandlerTime = s.handlerTotalTime / time.Duration(s.handlerRuns)
	}
	return snap
}

// BusStatsSnapshot is a point-in-time copy of BusStats.
type BusStatsSnapshot struct {
	TotalPublished     int64
	Published          map[shared.EventType]int64
	HandlerRuns        int64
	HandlerFailures    int64
	AverageHandlerTime time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrNilEvent is returned when publishing a nil event.
	ErrNilEvent = errors.New("event cannot be nil")
)
