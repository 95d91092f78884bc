package server

import (
	"fmt"
	"sync"
	"time"
)

// fixedWindow counts events in a window that opens with its first event.
type fixedWindow struct {
	span  time.Duration
	start time.Time
	count int
}

func (w *fixedWindow) roll(now time.Time) {
	if w.start.IsZero() || now.Sub(w.start) >= w.span {
		w.start = now
		w.count = 0
	}
}

func (w *fixedWindow) retryAfter(now time.Time) time.Duration {
	return w.start.Add(w.span).Sub(now)
}

// clientState is the limiter's bookkeeping for one client key.
type clientState struct {
	minute fixedWindow
	hour   fixedWindow

	day      time.Time
	dayCount int
	dayBytes int64

	lastSeen time.Time
}

func newClientState(now time.Time) *clientState {
	return &clientState{
		minute:   fixedWindow{span: time.Minute, start: now},
		hour:     fixedWindow{span: time.Hour, start: now},
		day:      now,
		lastSeen: now,
	}
}

func (c *clientState) roll(now time.Time) {
	c.minute.roll(now)
	c.hour.roll(now)
	if !sameDay(now, c.day) {
		c.day = now
		c.dayCount = 0
		c.dayBytes = 0
	}
}

func (c *clientState) record(now time.Time, size int64) {
	c.minute.count++
	c.hour.count++
	c.dayCount++
	c.dayBytes += size
	c.lastSeen = now
}

// UserUsage is a snapshot of one client's counters.
type UserUsage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64
}

// RateLimiter enforces per-client request rates on the detection endpoints,
// plus daily request and upload-volume quotas. A zero limit is disabled.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int
	maxDataPerDay     int64

	userRequests map[string]*clientState
	now          func() time.Time
}

// NewRateLimiter creates a limiter. maxDataPerDay is in bytes.
func NewRateLimiter(requestsPerMinute, requestsPerHour, maxRequestsPerDay int, maxDataPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		maxRequestsPerDay: maxRequestsPerDay,
		maxDataPerDay:     maxDataPerDay,
		userRequests:      make(map[string]*clientState),
		now:               time.Now,
	}
}

// CheckRateLimit admits a request of dataSize bytes from userID and counts it.
// A rejected request is not counted; the error is a *RateLimitError or a
// *QuotaExceededError.
func (rl *RateLimiter) CheckRateLimit(userID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	state, ok := rl.userRequests[userID]
	if !ok {
		state = newClientState(now)
		rl.userRequests[userID] = state
	}
	state.roll(now)

	if err := rl.admit(state, dataSize, now); err != nil {
		return err
	}
	state.record(now, dataSize)
	return nil
}

func (rl *RateLimiter) admit(state *clientState, dataSize int64, now time.Time) error {
	windows := []struct {
		name  string
		limit int
		w     *fixedWindow
	}{
		{"minute", rl.requestsPerMinute, &state.minute},
		{"hour", rl.requestsPerHour, &state.hour},
	}
	for _, win := range windows {
		if win.limit > 0 && win.w.count >= win.limit {
			return &RateLimitError{Type: win.name, Limit: win.limit, RetryAfter: win.w.retryAfter(now)}
		}
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	switch {
	case rl.maxRequestsPerDay > 0 && state.dayCount >= rl.maxRequestsPerDay:
		return &QuotaExceededError{
			Type: "requests", Limit: int64(rl.maxRequestsPerDay), Used: int64(state.dayCount), Resets: midnight,
		}
	case rl.maxDataPerDay > 0 && state.dayBytes+dataSize > rl.maxDataPerDay:
		return &QuotaExceededError{Type: "data", Limit: rl.maxDataPerDay, Used: state.dayBytes, Resets: midnight}
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// GetUsage returns the counters recorded for userID, or zero usage for an
// unknown client.
func (rl *RateLimiter) GetUsage(userID string) UserUsage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.userRequests[userID]
	if !ok {
		return UserUsage{}
	}
	return UserUsage{
		RequestsLastMinute: state.minute.count,
		RequestsLastHour:   state.hour.count,
		RequestsToday:      state.dayCount,
		DataToday:          state.dayBytes,
	}
}

// Cleanup drops clients idle for longer than maxIdle and reports how many
// were dropped.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for id, state := range rl.userRequests {
		if now.Sub(state.lastSeen) > maxIdle {
			delete(rl.userRequests, id)
			removed++
		}
	}
	return removed
}

// RateLimitError is returned when a per-minute or per-hour limit is hit.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError is returned when a daily quota is used up.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
