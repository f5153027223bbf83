// Package ratelimit throttles HTTP callers with a per-key sliding window.
// Signed requests are keyed by account, anonymous ones by client IP.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is set when the request was rejected.
	RetryAfter time.Duration
}

// Window is an in-memory sliding-window counter. It is not shared between
// nodes.
type Window struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	buckets map[string][]time.Time
}

func NewWindow(limit int, window time.Duration) *Window {
	return &Window{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string][]time.Time),
	}
}

// Allow records a request for key when it fits in the window.
func (w *Window) Allow(_ context.Context, key string) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	stamps := prune(w.buckets[key], now.Add(-w.window))

	if len(stamps) >= w.limit {
		w.buckets[key] = stamps
		resetAt := stamps[0].Add(w.window)
		return Result{
			Limit:      w.limit,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	stamps = append(stamps, now)
	w.buckets[key] = stamps
	return Result{
		Allowed:   true,
		Limit:     w.limit,
		Remaining: w.limit - len(stamps),
		ResetAt:   stamps[0].Add(w.window),
	}
}

// Sweep drops keys with no request inside the window.
func (w *Window) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := w.now().Add(-w.window)
	removed := 0
	for key, stamps := range w.buckets {
		if len(prune(stamps, cutoff)) == 0 {
			delete(w.buckets, key)
			removed++
		}
	}
	return removed
}

// prune drops timestamps at or before cutoff. stamps is ordered.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
