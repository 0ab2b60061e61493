package ingest

import (
	"sync"
	"time"
)

const (
	// DefaultWindow is the fixed rate-limit window length.
	DefaultWindow = time.Minute
	// DefaultMaxRequests is the per-device quota within one window.
	DefaultMaxRequests = 120
)

type limitEntry struct {
	count   int
	resetAt time.Time
}

// Limiter enforces a fixed-window request quota per device key. The window
// is approximate: bursts straddling a window boundary can admit up to
// twice the nominal rate in a short span, which is acceptable here.
// Entries are never evicted, so the table grows with the number of
// distinct devices ever seen.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	now     func() time.Time
	entries map[string]*limitEntry
}

// Result reports the outcome of one admission check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// NewLimiter creates a Limiter. Zero window/max fall back to the defaults;
// a nil now falls back to time.Now.
func NewLimiter(window time.Duration, max int, now func() time.Time) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		window:  window,
		max:     max,
		now:     now,
		entries: make(map[string]*limitEntry),
	}
}

// Allow records one request for key and reports whether it is admitted.
// The first request in a window starts a fresh count with expiry now+W;
// requests at or above the quota are rejected until the window expires.
func (l *Limiter) Allow(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		l.entries[key] = &limitEntry{count: 1, resetAt: now.Add(l.window)}
		return Result{Allowed: true, Limit: l.max, Remaining: l.max - 1}
	}

	if e.count >= l.max {
		return Result{Limit: l.max, RetryAfter: e.resetAt.Sub(now)}
	}
	e.count++
	return Result{Allowed: true, Limit: l.max, Remaining: l.max - e.count}
}
