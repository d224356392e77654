package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/article-search/pkg/errors"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "flaky", RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryGivesUp(t *testing.T) {
	cause := errors.New("still broken")
	attempts := 0
	err := Retry(context.Background(), "broken", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return cause
	})
	require.ErrorIs(t, err, cause)
	require.Equal(t, 3, attempts)
}

func TestRetryIfStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "decode", RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		RetryIf:      StopOn(apperrors.ErrBlobNotFound, apperrors.ErrDeserialize),
	}, func() error {
		attempts++
		return apperrors.Malformed("bad magic", nil)
	})
	require.ErrorIs(t, err, apperrors.ErrDeserialize)
	require.Equal(t, 1, attempts)
}

func TestRetryReportsEachRetry(t *testing.T) {
	var retried []int
	attempts := 0
	err := Retry(context.Background(), "fetch-index", RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		RetryIf:      StopOn(apperrors.ErrDeserialize),
		OnRetry:      func(attempt int, _ error) { retried = append(retried, attempt) },
	}, func() error {
		attempts++
		return errors.New("connection reset")
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, []int{1, 2}, retried, "no retry follows the last attempt")
}

func TestRetryDelayIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second}.withDefaults()
	require.LessOrEqual(t, cfg.delay(1), 1100*time.Millisecond)
	require.Equal(t, 3*time.Second, cfg.delay(10))
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "cancelled", RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}, func() error {
		return errors.New("fail")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerTransitions(t *testing.T) {
	assert := require.New(t)
	var transitions []State
	cb := NewCircuitBreaker("redis", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange:    func(_ string, state State) { transitions = append(transitions, state) },
	})
	fail := func() error { return errors.New("down") }

	assert.Error(cb.Execute(fail))
	assert.Equal(StateClosed, cb.GetState())
	assert.Error(cb.Execute(fail))
	assert.Equal(StateOpen, cb.GetState())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(err, ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)
	assert.NoError(cb.Execute(func() error { return nil }))
	assert.Equal(StateClosed, cb.GetState())
	assert.Equal([]State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, apperrors.ErrTimeout)

	require.NoError(t, WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error { return nil }))
}
