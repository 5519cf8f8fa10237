package core

import (
	"sync"
	"testing"
	"time"
)

func TestRateLimiterCapEnforced(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		if d := rl.CheckAndRecord("actor1"); !d.Allowed {
			t.Fatalf("call %d rejected, want allowed", i+1)
		}
	}

	d := rl.CheckAndRecord("actor1")
	if d.Allowed {
		t.Fatal("call over cap allowed, want rejected")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, 1m]", d.RetryAfter)
	}
}

func TestRateLimiterRejectionDoesNotConsumeBudget(t *testing.T) {
	base := time.Now()
	clock := base
	rl := NewRateLimiter(time.Minute, 2)
	rl.now = func() time.Time { return clock }

	rl.CheckAndRecord("actor1")
	rl.CheckAndRecord("actor1")

	// Rejected calls must not extend the window.
	for i := 0; i < 5; i++ {
		if d := rl.CheckAndRecord("actor1"); d.Allowed {
			t.Fatal("over-cap call allowed")
		}
	}

	// Once the first call leaves the window, one slot frees up regardless of
	// how many rejections happened in between.
	clock = base.Add(time.Minute + time.Second)
	if d := rl.CheckAndRecord("actor1"); !d.Allowed {
		t.Error("call after window expiry rejected, want allowed")
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	base := time.Now()
	clock := base
	rl := NewRateLimiter(time.Minute, 2)
	rl.now = func() time.Time { return clock }

	rl.CheckAndRecord("actor1")

	clock = base.Add(30 * time.Second)
	rl.CheckAndRecord("actor1")

	clock = base.Add(45 * time.Second)
	if d := rl.CheckAndRecord("actor1"); d.Allowed {
		t.Fatal("third call within window allowed")
	}

	// 61s after the first call it falls out; the second (t=30s) remains.
	clock = base.Add(61 * time.Second)
	if d := rl.CheckAndRecord("actor1"); !d.Allowed {
		t.Fatal("call after oldest expired rejected")
	}
	if d := rl.CheckAndRecord("actor1"); d.Allowed {
		t.Fatal("cap exceeded again but call allowed")
	}
}

func TestRateLimiterActorsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)

	if d := rl.CheckAndRecord("actor1"); !d.Allowed {
		t.Fatal("first actor1 call rejected")
	}
	if d := rl.CheckAndRecord("actor2"); !d.Allowed {
		t.Fatal("actor2 throttled by actor1's usage")
	}
	if d := rl.CheckAndRecord("actor1"); d.Allowed {
		t.Fatal("actor1 over cap but allowed")
	}
}

func TestRateLimiterRemainingAndReset(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 3)

	if got := rl.Remaining("actor1"); got != 3 {
		t.Errorf("Remaining = %d, want 3", got)
	}

	rl.CheckAndRecord("actor1")
	rl.CheckAndRecord("actor1")
	if got := rl.Remaining("actor1"); got != 1 {
		t.Errorf("Remaining = %d, want 1", got)
	}

	rl.Reset("actor1")
	if got := rl.Remaining("actor1"); got != 3 {
		t.Errorf("Remaining after reset = %d, want 3", got)
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.Window() != DefaultRateWindow {
		t.Errorf("Window = %v, want %v", rl.Window(), DefaultRateWindow)
	}
	if rl.Cap() != DefaultRateCap {
		t.Errorf("Cap = %d, want %d", rl.Cap(), DefaultRateCap)
	}
}

func TestRateLimiterConcurrentCallers(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d := rl.CheckAndRecord("actor1"); d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want exactly 50", allowed)
	}
}
