// Package circuitbreaker stops calling a remote classroom store after
// repeated outages and lets a single probe through once a cooldown has passed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown has passed.
	StateOpen
	// StateHalfOpen lets one probe call through at a time.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned without calling the store while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned while a half-open probe is in flight.
	ErrTooManyRequests = errors.New("circuit breaker probe in progress")
)

// Settings configure a Breaker. Zero values take the store defaults.
type Settings struct {
	Name string

	// TripAfter consecutive failures open the breaker.
	TripAfter int

	// CloseAfter consecutive probe successes close it again.
	CloseAfter int

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration

	// IsFailure filters which errors count. Nil counts every error.
	IsFailure func(error) bool

	// OnStateChange is called with the breaker lock held; keep it short.
	OnStateChange func(name string, from, to State)

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	s Settings

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
}

// New creates a closed breaker.
func New(s Settings) *Breaker {
	if s.TripAfter <= 0 {
		s.TripAfter = 3
	}
	if s.CloseAfter <= 0 {
		s.CloseAfter = 1
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 10 * time.Second
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return &Breaker{s: s}
}

// StoreBreaker returns the breaker used in front of postgres and redis.
// isFailure decides which errors are outages; a lost version race is not.
func StoreBreaker(backend string, isFailure func(error) bool, onStateChange func(name string, from, to State)) *Breaker {
	return New(Settings{
		Name:          "store:" + backend,
		TripAfter:     3,
		CloseAfter:    1,
		Cooldown:      10 * time.Second,
		IsFailure:     isFailure,
		OnStateChange: onStateChange,
	})
}

// Execute calls fn unless the breaker rejects the call.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.s.Now().Sub(b.openedAt) < b.s.Cooldown {
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrTooManyRequests
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil
	if failed && b.s.IsFailure != nil {
		failed = b.s.IsFailure(err)
	}
	wasProbe := b.state == StateHalfOpen
	if wasProbe {
		b.probing = false
	}

	if failed {
		b.successes = 0
		b.failures++
		if wasProbe || b.failures >= b.s.TripAfter {
			b.openedAt = b.s.Now()
			b.transition(StateOpen)
		}
		return
	}

	b.failures = 0
	if wasProbe {
		b.successes++
		if b.successes >= b.s.CloseAfter {
			b.transition(StateClosed)
		}
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	b.successes = 0
	if b.s.OnStateChange != nil {
		b.s.OnStateChange(b.s.Name, from, to)
	}
}
