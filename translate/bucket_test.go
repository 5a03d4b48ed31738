package translate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets TokenBucket tests advance time deterministically instead of
// sleeping for real (spec.md §8: rpm_limit=60, capacity=10 — 10 immediate
// acquires complete in under 100ms, the 11th takes at least 0.9s). Safe for
// concurrent use since multiple Acquire callers may race to advance it.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func withFakeClock(t *testing.T) *fakeClock {
	t.Helper()
	clock := &fakeClock{now: time.Unix(0, 0)}
	origNow, origSleep := nowFunc, sleepFunc
	nowFunc = clock.Now
	sleepFunc = clock.Sleep
	t.Cleanup(func() {
		nowFunc = origNow
		sleepFunc = origSleep
	})
	return clock
}

func TestClampRPM(t *testing.T) {
	assert.Equal(t, 100, ClampRPM(0))
	assert.Equal(t, 100, ClampRPM(6))
	assert.Equal(t, 100, ClampRPM(9))
	assert.Equal(t, 10, ClampRPM(10))
	assert.Equal(t, 150, ClampRPM(150))
	assert.Equal(t, 300, ClampRPM(300))
	assert.Equal(t, 300, ClampRPM(301))
	assert.Equal(t, 300, ClampRPM(1000))
}

func TestTokenBucketTenImmediateAcquiresSucceed(t *testing.T) {
	withFakeClock(t)
	b := NewTokenBucket(DefaultCapacity, 60)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Acquire(ctx))
	}
}

func TestTokenBucketEleventhAcquireWaits(t *testing.T) {
	clock := withFakeClock(t)
	b := NewTokenBucket(DefaultCapacity, 60)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Acquire(ctx))
	}

	start := clock.Now()
	require.NoError(t, b.Acquire(ctx))
	elapsed := clock.Now().Sub(start)

	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
}

func TestTokenBucketAcquireRespectsContextCancellation(t *testing.T) {
	withFakeClock(t)
	b := NewTokenBucket(DefaultCapacity, 60)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Acquire(ctx))
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	sleepFunc = func(_ context.Context, _ time.Duration) error {
		return context.Canceled
	}

	err := b.Acquire(canceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	clock := withFakeClock(t)
	b := NewTokenBucket(DefaultCapacity, 60)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Acquire(ctx))
	}

	clock.advance(10 * time.Second)
	require.NoError(t, b.Acquire(ctx))
}

func TestTokenBucketBurstNeverExceedsCapacity(t *testing.T) {
	clock := withFakeClock(t)
	b := NewTokenBucket(DefaultCapacity, 60)

	clock.advance(time.Hour)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Acquire(ctx))
	}

	start := clock.Now()
	require.NoError(t, b.Acquire(ctx))
	assert.GreaterOrEqual(t, clock.Now().Sub(start), 900*time.Millisecond)
}
