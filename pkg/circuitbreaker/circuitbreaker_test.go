package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func newTestBreaker(clock *fakeClock, changes *[]State) *Breaker {
	return New(Settings{
		Name:      "test",
		TripAfter: 2,
		Cooldown:  time.Second,
		Now:       clock.Now,
		OnStateChange: func(_ string, _, to State) {
			*changes = append(*changes, to)
		},
	})
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var changes []State
	b := newTestBreaker(clock, &changes)

	assert.ErrorIs(t, b.Execute(context.Background(), fail), errDown)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(context.Background(), fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, changes)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var changes []State
	b := newTestBreaker(clock, &changes)

	_ = b.Execute(context.Background(), fail)
	require.NoError(t, b.Execute(context.Background(), ok))
	_ = b.Execute(context.Background(), fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ProbeClosesAfterCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var changes []State
	b := newTestBreaker(clock, &changes)

	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	clock.Advance(time.Second)

	require.NoError(t, b.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, changes)
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var changes []State
	b := newTestBreaker(clock, &changes)

	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	clock.Advance(time.Second)

	assert.ErrorIs(t, b.Execute(context.Background(), fail), errDown)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Execute(context.Background(), ok), ErrCircuitOpen)
}

func TestBreaker_OneProbeAtATime(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var changes []State
	b := newTestBreaker(clock, &changes)

	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	clock.Advance(time.Second)

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		return b.Execute(ctx, ok)
	})
	assert.ErrorIs(t, err, ErrTooManyRequests)
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	benign := errors.New("stale version")
	b := New(Settings{TripAfter: 1, IsFailure: func(err error) bool { return !errors.Is(err, benign) }})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Execute(context.Background(), func(context.Context) error { return benign }), benign)
	}
	assert.Equal(t, StateClosed, b.State())
}
