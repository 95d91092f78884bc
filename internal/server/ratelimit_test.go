package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source for the rate limiter.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedLimiter(rpm, rph, rpd int, data int64) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(rpm, rph, rpd, data)
	rl.now = clock.Now
	return rl, clock
}

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10, 100, 1000, 1024*1024)

	assert.Equal(t, 10, rl.requestsPerMinute)
	assert.Equal(t, 100, rl.requestsPerHour)
	assert.Equal(t, 1000, rl.maxRequestsPerDay)
	assert.Equal(t, int64(1024*1024), rl.maxDataPerDay)
	assert.NotNil(t, rl.userRequests)
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl := NewRateLimiter(0, 0, 0, 0)

	for range 100 {
		require.NoError(t, rl.CheckRateLimit("user1", 100))
	}
	usage := rl.GetUsage("user1")
	assert.Equal(t, 100, usage.RequestsToday)
	assert.Equal(t, int64(10000), usage.DataToday)
}

func TestRateLimiter_RequestsPerMinute(t *testing.T) {
	rl, clock := newClockedLimiter(2, 0, 0, 0)

	require.NoError(t, rl.CheckRateLimit("user1", 0))
	clock.Advance(20 * time.Second)
	require.NoError(t, rl.CheckRateLimit("user1", 0))

	err := rl.CheckRateLimit("user1", 0)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "minute", rle.Type)
	assert.Equal(t, 2, rle.Limit)
	assert.Equal(t, 40*time.Second, rle.RetryAfter)
	assert.Contains(t, err.Error(), "rate limit exceeded for minute")

	// Rejected requests are not counted.
	assert.Equal(t, 2, rl.GetUsage("user1").RequestsLastMinute)

	clock.Advance(40 * time.Second)
	require.NoError(t, rl.CheckRateLimit("user1", 0))
	assert.Equal(t, 1, rl.GetUsage("user1").RequestsLastMinute)
}

func TestRateLimiter_RequestsPerHour(t *testing.T) {
	rl, clock := newClockedLimiter(0, 3, 0, 0)

	for range 3 {
		require.NoError(t, rl.CheckRateLimit("user1", 0))
		clock.Advance(5 * time.Minute)
	}

	err := rl.CheckRateLimit("user1", 0)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "hour", rle.Type)
	assert.Equal(t, 45*time.Minute, rle.RetryAfter)

	clock.Advance(45 * time.Minute)
	assert.NoError(t, rl.CheckRateLimit("user1", 0))
}

func TestRateLimiter_WindowsResetUnderSteadyTraffic(t *testing.T) {
	rl, clock := newClockedLimiter(5, 0, 0, 0)

	// One request every 15s never exceeds 5 per minute.
	for range 20 {
		require.NoError(t, rl.CheckRateLimit("steady", 0))
		clock.Advance(15 * time.Second)
	}
}

func TestRateLimiter_DailyRequestQuota(t *testing.T) {
	rl, clock := newClockedLimiter(0, 0, 2, 0)

	require.NoError(t, rl.CheckRateLimit("user1", 0))
	require.NoError(t, rl.CheckRateLimit("user1", 0))

	err := rl.CheckRateLimit("user1", 0)
	var qe *QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "requests", qe.Type)
	assert.Equal(t, int64(2), qe.Limit)
	assert.Equal(t, int64(2), qe.Used)
	assert.Equal(t, time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC), qe.Resets)
	assert.Contains(t, err.Error(), "quota exceeded for requests")

	clock.Advance(12 * time.Hour)
	require.NoError(t, rl.CheckRateLimit("user1", 0))
	assert.Equal(t, 1, rl.GetUsage("user1").RequestsToday)
}

func TestRateLimiter_DailyDataQuota(t *testing.T) {
	rl, _ := newClockedLimiter(0, 0, 0, 1000)

	require.NoError(t, rl.CheckRateLimit("user1", 600))
	require.NoError(t, rl.CheckRateLimit("user1", 400))

	err := rl.CheckRateLimit("user1", 1)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "data", qe.Type)
	assert.Equal(t, int64(1000), qe.Used)

	require.NoError(t, rl.CheckRateLimit("user1", 0), "empty requests still fit")
}

func TestRateLimiter_MultipleUsers(t *testing.T) {
	rl, _ := newClockedLimiter(1, 0, 0, 0)

	require.NoError(t, rl.CheckRateLimit("a", 0))
	require.NoError(t, rl.CheckRateLimit("b", 0))
	assert.Error(t, rl.CheckRateLimit("a", 0))
	assert.Error(t, rl.CheckRateLimit("b", 0))
}

func TestRateLimiter_GetUsageUnknown(t *testing.T) {
	rl := NewRateLimiter(1, 1, 1, 1)
	assert.Equal(t, UserUsage{}, rl.GetUsage("nobody"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, clock := newClockedLimiter(0, 0, 0, 0)

	require.NoError(t, rl.CheckRateLimit("old", 0))
	clock.Advance(2 * time.Hour)
	require.NoError(t, rl.CheckRateLimit("fresh", 0))

	assert.Equal(t, 1, rl.Cleanup(time.Hour))
	assert.Equal(t, UserUsage{}, rl.GetUsage("old"))
	assert.Equal(t, 1, rl.GetUsage("fresh").RequestsToday)
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(50, 0, 0, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.CheckRateLimit("shared", 1) == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestFixedWindow_Roll(t *testing.T) {
	start := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	w := fixedWindow{span: time.Minute}

	w.roll(start)
	assert.Equal(t, start, w.start, "a zero window opens on first use")
	w.count = 3

	w.roll(start.Add(59 * time.Second))
	assert.Equal(t, 3, w.count)
	assert.Equal(t, time.Second, w.retryAfter(start.Add(59*time.Second)))

	w.roll(start.Add(time.Minute))
	assert.Zero(t, w.count)
	assert.Equal(t, start.Add(time.Minute), w.start)
}
