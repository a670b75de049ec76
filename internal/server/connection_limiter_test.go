package server

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalConnectionLimiter_AcquireRelease(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(3)

	for range 3 {
		require.True(t, limiter.Acquire())
	}
	assert.False(t, limiter.Acquire(), "fourth acquire should fail")
	assert.Equal(t, int64(3), limiter.Current())

	limiter.Release()
	assert.True(t, limiter.Acquire())
}

func TestGlobalConnectionLimiter_Concurrent(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(50)

	var acquired atomic.Int64
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Acquire() {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), acquired.Load())
	assert.Equal(t, int64(50), limiter.Current())
}

func TestIPConnectionLimiter_PerIPCaps(t *testing.T) {
	limiter := NewIPConnectionLimiter(2)

	require.True(t, limiter.Acquire("10.0.0.1"))
	require.True(t, limiter.Acquire("10.0.0.1"))
	assert.False(t, limiter.Acquire("10.0.0.1"))

	// Other IPs are unaffected.
	assert.True(t, limiter.Acquire("10.0.0.2"))

	limiter.Release("10.0.0.1")
	assert.True(t, limiter.Acquire("10.0.0.1"))
}

func TestIPConnectionLimiter_ReleaseCleansUpZeroEntries(t *testing.T) {
	limiter := NewIPConnectionLimiter(5)

	require.True(t, limiter.Acquire("10.0.0.1"))
	limiter.Release("10.0.0.1")
	assert.Equal(t, 0, limiter.Count("10.0.0.1"))

	// Releasing below zero must not underflow.
	limiter.Release("10.0.0.1")
	assert.Equal(t, 0, limiter.Count("10.0.0.1"))
}

func TestConnectionRateLimiter_BurstThenThrottle(t *testing.T) {
	limiter := NewConnectionRateLimiter(1, 3)

	for range 3 {
		assert.True(t, limiter.Allow("10.0.0.1"))
	}
	assert.False(t, limiter.Allow("10.0.0.1"), "burst exhausted")

	// A different IP has its own bucket.
	assert.True(t, limiter.Allow("10.0.0.2"))
}

func TestConnectionLimits_RollbackOnPerIPRejection(t *testing.T) {
	limits := NewConnectionLimits(10, 1, 1000, 1000)

	ok, reason := limits.Acquire("10.0.0.1")
	require.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = limits.Acquire("10.0.0.1")
	require.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)

	// The rejected attempt must not leak a global slot.
	assert.Equal(t, int64(1), limits.global.Current())
}

func TestConnectionLimits_GlobalRejection(t *testing.T) {
	limits := NewConnectionLimits(1, 10, 1000, 1000)

	ok, _ := limits.Acquire("10.0.0.1")
	require.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.2")
	require.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)

	limits.Release("10.0.0.1")
	ok, _ = limits.Acquire("10.0.0.2")
	assert.True(t, ok)
}

func TestConnectionLimits_RateRejection(t *testing.T) {
	limits := NewConnectionLimits(100, 100, 0.001, 1)

	ok, _ := limits.Acquire("10.0.0.1")
	require.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.1")
	require.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)
}
