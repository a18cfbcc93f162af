// Package ratelimit implements a fixed-window request counter keyed by
// arbitrary strings. State is process-local; expired windows are garbage
// collected opportunistically rather than on every call.
package ratelimit

import (
	"sync"
	"time"
)

// gcEvery triggers a sweep of expired windows every N consume calls.
const gcEvery = 64

// gcHighWater triggers an immediate sweep when the window map grows past
// this many entries.
const gcHighWater = 1024

// Result describes the outcome of a Consume call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window rate limiter safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	calls   int

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		nowFunc: time.Now,
	}
}

// Consume records one request against key and reports whether it is allowed.
// A non-positive limit or empty key disables limiting: the call is always
// allowed and no state is kept.
func (l *Limiter) Consume(key string, limit int, windowDur time.Duration) Result {
	if limit <= 0 || key == "" {
		return Result{Allowed: true, Remaining: limit}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()

	l.calls++
	if l.calls%gcEvery == 0 || len(l.windows) > gcHighWater {
		l.sweep(now)
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(windowDur)}
		l.windows[key] = w
		return Result{Allowed: true, Remaining: limit - 1, ResetAt: w.resetAt}
	}

	if w.count < limit {
		w.count++
		return Result{Allowed: true, Remaining: limit - w.count, ResetAt: w.resetAt}
	}

	// Rejected requests do not consume from the window.
	return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
}

// sweep removes expired windows. Caller must hold l.mu.
func (l *Limiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// Size returns the number of tracked windows, for observability and tests.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
