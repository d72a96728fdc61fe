package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFlaky = errors.New("flaky")

func fast(opts ...Option) *Retrier {
	return New(append([]Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond)}, opts...)...)
}

func TestDo_RetriesMarkedErrors(t *testing.T) {
	calls := 0
	err := fast(WithMaxAttempts(4)).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpWithUnwrappedError(t *testing.T) {
	calls := 0
	err := fast(WithMaxAttempts(3)).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errFlaky)
	})
	assert.Same(t, errFlaky, err)
	assert.Equal(t, 3, calls)
}

func TestDo_UnmarkedErrorsAreFinalByDefault(t *testing.T) {
	calls := 0
	err := fast().Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.Same(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentBeatsRetryIf(t *testing.T) {
	calls := 0
	r := fast(WithRetryIf(func(error) bool { return true }))
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})
	assert.Same(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryIf(t *testing.T) {
	calls := 0
	r := fast(WithMaxAttempts(5), WithRetryIf(func(err error) bool { return errors.Is(err, errFlaky) }))
	_ = r.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.Equal(t, 5, calls)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fast().Do(ctx, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDelay_DoublesUpToMax(t *testing.T) {
	r := New(WithInitialDelay(10*time.Millisecond), WithMaxDelay(35*time.Millisecond))
	r.policy.Jitter = 0

	assert.Equal(t, 10*time.Millisecond, r.delay(1))
	assert.Equal(t, 20*time.Millisecond, r.delay(2))
	assert.Equal(t, 35*time.Millisecond, r.delay(3))
	assert.Equal(t, 35*time.Millisecond, r.delay(10))
}
