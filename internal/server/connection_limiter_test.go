package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalConnectionLimiter(t *testing.T) {
	l := NewGlobalConnectionLimiter(2)

	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire(), "third connection exceeds the cap")

	l.Release()
	assert.True(t, l.Acquire())
	assert.Equal(t, int64(2), l.Current())
}

func TestGlobalConnectionLimiter_Concurrent(t *testing.T) {
	l := NewGlobalConnectionLimiter(50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, acquired)
	assert.Equal(t, int64(50), l.Current())
}

func TestIPConnectionLimiter(t *testing.T) {
	l := NewIPConnectionLimiter(2)

	assert.True(t, l.Acquire("10.0.0.1"))
	assert.True(t, l.Acquire("10.0.0.1"))
	assert.False(t, l.Acquire("10.0.0.1"), "per-IP cap reached")
	assert.True(t, l.Acquire("10.0.0.2"), "other IPs are unaffected")

	l.Release("10.0.0.1")
	assert.True(t, l.Acquire("10.0.0.1"))
}

func TestIPConnectionLimiter_ReleaseCleansUp(t *testing.T) {
	l := NewIPConnectionLimiter(5)

	l.Acquire("10.0.0.1")
	l.Release("10.0.0.1")
	assert.Equal(t, 0, l.Count("10.0.0.1"))
	assert.NotContains(t, l.ips, "10.0.0.1", "zeroed entries are removed")

	// Releasing an unknown IP must not underflow.
	l.Release("10.0.0.9")
	assert.Equal(t, 0, l.Count("10.0.0.9"))
}

func TestConnectionRateLimiter(t *testing.T) {
	// One connection per second with a burst of 2.
	l := NewConnectionRateLimiter(1, 2)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, l.Allow("10.0.0.2"), "buckets are per IP")
}

func TestConnectionLimits_RollbackOnPerIPRejection(t *testing.T) {
	// Global cap of 10, but only 1 connection per IP.
	l := NewConnectionLimits(10, 1, 1000, 1000)

	ok, _ := l.Acquire("10.0.0.1")
	require.True(t, ok)

	ok, reason := l.Acquire("10.0.0.1")
	require.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)
	assert.Equal(t, int64(1), l.global.Current(), "global slot must be rolled back")
}

func TestConnectionLimits_Reasons(t *testing.T) {
	t.Run("rate", func(t *testing.T) {
		l := NewConnectionLimits(10, 10, 1, 1)
		ok, _ := l.Acquire("10.0.0.1")
		require.True(t, ok)
		ok, reason := l.Acquire("10.0.0.1")
		require.False(t, ok)
		assert.Equal(t, LimitReasonRate, reason)
	})

	t.Run("global", func(t *testing.T) {
		l := NewConnectionLimits(1, 10, 1000, 1000)
		ok, _ := l.Acquire("10.0.0.1")
		require.True(t, ok)
		ok, reason := l.Acquire("10.0.0.2")
		require.False(t, ok)
		assert.Equal(t, LimitReasonGlobal, reason)
	})
}

func TestConnectionLimits_ReleaseRestoresBoth(t *testing.T) {
	l := NewConnectionLimits(1, 1, 1000, 1000)

	ok, _ := l.Acquire("10.0.0.1")
	require.True(t, ok)

	l.Release("10.0.0.1")
	ok, _ = l.Acquire("10.0.0.1")
	assert.True(t, ok)
}
