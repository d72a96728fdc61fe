// Package retry repeats store reads and optimistic read-modify-write cycles
// with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// marked carries an explicit retry decision through error wrapping.
type marked struct {
	err   error
	retry bool
}

func (m *marked) Error() string { return m.err.Error() }
func (m *marked) Unwrap() error { return m.err }

// Retryable marks err as worth another attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, retry: true}
}

// Permanent marks err as final: Do returns it at once, unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var m *marked
	return errors.As(err, &m) && m.retry
}

// Policy describes how often and how patiently to retry.
type Policy struct {
	// Attempts counts the first call too.
	Attempts int

	// Initial is the delay after the first failure; it doubles up to Max.
	Initial time.Duration
	Max     time.Duration

	// Jitter spreads each delay by ±Jitter of its length.
	Jitter float64

	// RetryIf decides for unmarked errors. Nil retries only Retryable errors.
	RetryIf func(error) bool
}

// Option adjusts a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the total number of calls.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.Attempts = n
		}
	}
}

// WithInitialDelay sets the first backoff delay.
func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.Initial = d
		}
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.Max = d
		}
	}
}

// WithRetryIf sets the predicate for unmarked errors.
func WithRetryIf(fn func(error) bool) Option {
	return func(p *Policy) {
		p.RetryIf = fn
	}
}

// Retrier runs operations under a Policy.
type Retrier struct {
	policy Policy
}

// New creates a Retrier: 3 attempts from 100ms, capped at 5s, 10% jitter.
func New(opts ...Option) *Retrier {
	p := Policy{
		Attempts: 3,
		Initial:  100 * time.Millisecond,
		Max:      5 * time.Second,
		Jitter:   0.1,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{policy: p}
}

// StoreRetrier is used for reads against postgres and redis.
func StoreRetrier() *Retrier {
	r := New(WithMaxAttempts(5), WithInitialDelay(200*time.Millisecond), WithMaxDelay(5*time.Second))
	r.policy.Jitter = 0.2
	return r
}

// ConflictRetrier is used when a write lost a version race. Delays are
// short: the loser only reloads and reapplies.
func ConflictRetrier(retryIf func(error) bool) *Retrier {
	r := New(
		WithMaxAttempts(5),
		WithInitialDelay(10*time.Millisecond),
		WithMaxDelay(200*time.Millisecond),
		WithRetryIf(retryIf),
	)
	r.policy.Jitter = 0.5
	return r
}

// Do calls op until it succeeds, returns a final error, the attempts run
// out or ctx is done. Marks added by Retryable/Permanent are stripped from
// the returned error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = unmark(err)

		if !r.shouldRetry(err) || attempt >= r.policy.Attempts {
			return last
		}

		t := time.NewTimer(r.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return last
		case <-t.C:
		}
	}
}

func (r *Retrier) shouldRetry(err error) bool {
	var m *marked
	if errors.As(err, &m) {
		return m.retry
	}
	return r.policy.RetryIf != nil && r.policy.RetryIf(err)
}

// delay is Initial·2^(attempt-1), capped at Max, then jittered.
func (r *Retrier) delay(attempt int) time.Duration {
	d := r.policy.Initial
	for i := 1; i < attempt && d < r.policy.Max; i++ {
		d *= 2
	}
	if d > r.policy.Max {
		d = r.policy.Max
	}
	if j := r.policy.Jitter; j > 0 {
		d += time.Duration(float64(d) * j * (rand.Float64()*2 - 1))
	}
	if d < 0 {
		return 0
	}
	return d
}

func unmark(err error) error {
	var m *marked
	if errors.As(err, &m) && m == err {
		return m.err
	}
	return err
}
