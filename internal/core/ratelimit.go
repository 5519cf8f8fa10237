// Package core implements per-actor sliding-window rate limiting.
package core

import (
	"sync"
	"time"
)

// Default rate limit parameters.
const (
	DefaultRateWindow = time.Minute
	DefaultRateCap    = 60
)

// RateDecision is the outcome of a rate limit check.
type RateDecision struct {
	// Allowed indicates the call may proceed.
	Allowed bool
	// RetryAfter is how long the caller should wait before retrying. Zero
	// when allowed.
	RetryAfter time.Duration
}

// RateLimiter bounds execution frequency per actor over a trailing window.
// Each actor's window is independent; one actor's volume never throttles
// another.
type RateLimiter struct {
	window time.Duration
	cap    int
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*actorWindow
}

type actorWindow struct {
	mu    sync.Mutex
	calls []time.Time
}

// NewRateLimiter creates a limiter with the given window width and call cap.
// Non-positive values fall back to the defaults.
func NewRateLimiter(window time.Duration, cap int) *RateLimiter {
	if window <= 0 {
		window = DefaultRateWindow
	}
	if cap <= 0 {
		cap = DefaultRateCap
	}
	return &RateLimiter{
		window:  window,
		cap:     cap,
		now:     time.Now,
		windows: make(map[string]*actorWindow),
	}
}

// Window returns the configured window width.
func (rl *RateLimiter) Window() time.Duration { return rl.window }

// Cap returns the configured per-window call cap.
func (rl *RateLimiter) Cap() int { return rl.cap }

// CheckAndRecord prunes the actor's window, then either records the call and
// allows it, or rejects without recording when the cap is reached.
func (rl *RateLimiter) CheckAndRecord(actor string) RateDecision {
	w := rl.actorWindowFor(actor)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	// Lazy prune: drop timestamps older than the window. Entries are
	// append-ordered, so the first fresh one ends the scan.
	kept := w.calls[:0]
	for _, t := range w.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.calls = kept

	if len(w.calls) >= rl.cap {
		oldest := w.calls[0]
		return RateDecision{
			Allowed:    false,
			RetryAfter: oldest.Add(rl.window).Sub(now),
		}
	}

	w.calls = append(w.calls, now)
	return RateDecision{Allowed: true}
}

// Remaining returns how many calls the actor has left in the current window.
func (rl *RateLimiter) Remaining(actor string) int {
	w := rl.actorWindowFor(actor)

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	count := 0
	for _, t := range w.calls {
		if t.After(cutoff) {
			count++
		}
	}

	remaining := rl.cap - count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears an actor's window.
func (rl *RateLimiter) Reset(actor string) {
	w := rl.actorWindowFor(actor)
	w.mu.Lock()
	w.calls = nil
	w.mu.Unlock()
}

func (rl *RateLimiter) actorWindowFor(actor string) *actorWindow {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[actor]
	if !ok {
		w = &actorWindow{}
		rl.windows[actor] = w
	}
	return w
}
