package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysRetry(error) Action { return Retry }

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	val, err := Do(context.Background(), Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}, alwaysRetry, func() (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	val, err := Do(context.Background(), Policy{MaxAttempts: 5, InitialBackoff: time.Millisecond}, alwaysRetry, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}, alwaysRetry, func() (int, error) {
		calls++
		return 0, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_StopAbortsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("bad request")
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func(error) Action { return Stop }, func() (int, error) {
		calls++
		return 0, boom
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var permanent *PermanentError
	require.ErrorAs(t, err, &permanent)
	assert.ErrorIs(t, err, boom)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, Policy{MaxAttempts: 3, InitialBackoff: time.Minute}, alwaysRetry, func() (int, error) {
		return 0, errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_OnRetryObservesBackoff(t *testing.T) {
	var backoffs []time.Duration
	policy := Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			backoffs = append(backoffs, backoff)
		},
	}

	_, err := Do(context.Background(), policy, alwaysRetry, func() (int, error) {
		return 0, errors.New("transient")
	})
	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, backoffs, "backoff doubles between attempts")
}
