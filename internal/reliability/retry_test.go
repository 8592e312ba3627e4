package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var delays []time.Duration
	err := Retry(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, func(_ error, d time.Duration) { delays = append(delays, d) })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("timeout")
	calls := 0
	err := Retry(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		return boom
	}, nil)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetry_SingleAttempt(t *testing.T) {
	for _, attempts := range []int{0, 1} {
		calls := 0
		_ = Retry(context.Background(), fastConfig(attempts), func(context.Context) error {
			calls++
			return errors.New("x")
		}, nil)
		assert.Equal(t, 1, calls, "attempts=%d", attempts)
	}
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	denied := errors.New("permission denied")
	calls := 0
	err := Retry(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		return Permanent(denied)
	}, nil)

	assert.Equal(t, denied, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryConfig{MaxAttempts: 10, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("unavailable")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryConfig(t *testing.T) {
	c := DefaultRetryConfig()
	assert.Equal(t, 3, c.MaxAttempts)
	assert.Less(t, c.InitialDelay, c.MaxDelay)
}
