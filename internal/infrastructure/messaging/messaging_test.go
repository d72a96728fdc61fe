package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/pkg/retry"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
}

func TestInMemoryEventBus_DeliversByTypeAndToAll(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var typed, all int
	require.NoError(t, bus.Subscribe(shared.EventStateChanged, func(shared.Event) error { typed++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))

	require.NoError(t, bus.Publish(shared.NewStateChangedEvent(shared.DefaultClassroomID, []string{"students"}, 1, 1)))
	require.NoError(t, bus.Publish(shared.NewPoolRefilledEvent(shared.DefaultClassroomID, 3, "all")))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)
	assert.Equal(t, int64(2), bus.Stats().TotalPublished)
}

func TestInMemoryEventBus_HandlerFailureDoesNotFailPublish(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("handler bug") }))

	assert.NoError(t, bus.Publish(shared.NewPoolRefilledEvent(shared.DefaultClassroomID, 1, "all")))
	assert.Equal(t, int64(2), bus.Stats().HandlerFailures)
}

func TestInMemoryEventBus_Async(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	var calls int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewPoolRefilledEvent(shared.DefaultClassroomID, i, "all")))
	}
	bus.Drain()
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(shared.NewPoolRefilledEvent(shared.DefaultClassroomID, 1, "all")), ErrEventBusClosed)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	e := shared.NewOutcomeRecordedEvent("a", "incorrect", "Math", 2, 1.3)
	e.BaseEvent = e.BaseEvent.WithCorrelationID("req-1")

	data, err := EncodeEnvelope(e, "instance-a")
	require.NoError(t, err)

	env, decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "instance-a", env.Source)
	assert.Equal(t, shared.EventOutcomeRecorded, decoded.EventType())
	assert.Equal(t, "a", decoded.AggregateID())
	assert.Equal(t, "incorrect", decoded.Payload()["outcome"])

	remote, ok := decoded.(RemoteEvent)
	require.True(t, ok)
	assert.Equal(t, "req-1", remote.CorrelationID)
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	_, _, err := DecodeEnvelope([]byte("not json"))
	assert.Error(t, err)

	_, _, err = DecodeEnvelope([]byte(`{"id":"x"}`))
	assert.Error(t, err)
}

func TestObserve_RetriesThenDeadLetters(t *testing.T) {
	cfg := ObserverConfig{
		Retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(time.Millisecond),
			retry.WithRetryIf(func(error) bool { return true }),
		),
		DeadLetters: NewDeadLetterQueue(10),
		Timeout:     time.Second,
	}

	var attempts int
	failing := Observe("flaky", func(shared.Event) error {
		attempts++
		return errors.New("still failing")
	}, cfg)

	err := failing(shared.NewPoolRefilledEvent(shared.DefaultClassroomID, 1, "all"))
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
	require.Equal(t, 1, cfg.DeadLetters.Size())

	entry, ok := cfg.DeadLetters.Pop()
	require.True(t, ok)
	assert.Equal(t, "flaky", entry.HandlerName)
	assert.Equal(t, 0, cfg.DeadLetters.Size())
}

func TestObserve_RecoversPanic(t *testing.T) {
	h := Observe("panicky", func(shared.Event) error { panic("nil map") }, ObserverConfig{})
	err := h(shared.NewPoolRefilledEvent(shared.DefaultClassroomID, 1, "all"))
	assert.ErrorIs(t, err, ErrHandlerPanic)
}

func TestDeadLetterQueue_DropsOldest(t *testing.T) {
	q := NewDeadLetterQueue(2)
	for _, name := range []string{"a", "b", "c"} {
		q.Add(DeadLetterEntry{HandlerName: name})
	}
	entries := q.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].HandlerName)
	assert.Equal(t, "c", entries[1].HandlerName)
}

type fakeRedis struct {
	mu        sync.Mutex
	published []string
	messages  chan RedisMessage
}

func (f *fakeRedis) Publish(_ context.Context, _ string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, message.(string))
	return nil
}

func (f *fakeRedis) Subscribe(context.Context, ...string) (<-chan RedisMessage, error) {
	return f.messages, nil
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisEventBus_ReplaysRemoteEventsOnly(t *testing.T) {
	client := &fakeRedis{messages: make(chan RedisMessage, 4)}
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         client,
		InstanceID:     "local",
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
	})
	require.NoError(t, err)
	defer bus.Close()

	received := make(chan shared.Event, 4)
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		received <- e
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewPoolRefilledEvent(shared.DefaultClassroomID, 2, "all")))
	require.Len(t, client.published, 1)
	<-received

	// Our own message echoed back by Redis is ignored.
	client.messages <- RedisMessage{Payload: client.published[0]}

	remote, err := EncodeEnvelope(shared.NewStateChangedEvent(shared.DefaultClassroomID, []string{"students"}, 3, 1), "other")
	require.NoError(t, err)
	client.messages <- RedisMessage{Payload: string(remote)}

	select {
	case e := <-received:
		assert.Equal(t, shared.EventStateChanged, e.EventType())
	case <-time.After(time.Second):
		t.Fatal("remote event was not delivered")
	}
	select {
	case e := <-received:
		t.Fatalf("unexpected extra event %s", e.EventType())
	case <-time.After(50 * time.Millisecond):
	}
}
