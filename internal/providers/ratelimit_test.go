package providers

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_MinimumInterval(t *testing.T) {
	// 1200 calls/min = 50ms interval.
	limiter := NewRateLimiter(1200)
	ctx := context.Background()

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 45*time.Millisecond {
		t.Errorf("second Wait() returned after %v, want >= ~50ms", elapsed)
	}
}

func TestRateLimiter_SerializesConcurrentCallers(t *testing.T) {
	// 3000 calls/min = 20ms interval.
	limiter := NewRateLimiter(3000)
	ctx := context.Background()

	const callers = 5
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Wait(ctx); err != nil {
				t.Errorf("Wait() error = %v", err)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// First caller may pass immediately; the remaining four queue at 20ms
	// cadence.
	if want := 4 * 20 * time.Millisecond; elapsed < want-10*time.Millisecond {
		t.Errorf("%d concurrent Wait() calls finished in %v, want >= ~%v", callers, elapsed, want)
	}

	status := limiter.Status()
	if status.TotalPermitted != callers {
		t.Errorf("TotalPermitted = %d, want %d", status.TotalPermitted, callers)
	}
}

func TestRateLimiter_ContextCancellation(t *testing.T) {
	// 6 calls/min = 10s interval; the second wait would block far longer
	// than the test allows.
	limiter := NewRateLimiter(6)
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	if err == nil {
		t.Fatal("Wait() should fail when context expires mid-wait")
	}

	// The cancelled caller was last in the queue, so its reserved slot is
	// released: only the first call's interval remains pending.
	if got := limiter.Status().NextAvailable; got > limiter.Interval() {
		t.Errorf("NextAvailable = %v after cancellation, want <= %v", got, limiter.Interval())
	}
}

func TestRateLimiter_DefaultRate(t *testing.T) {
	limiter := NewRateLimiter(0)
	if limiter.Interval() != time.Second {
		t.Errorf("default interval = %v, want 1s (60 calls/min)", limiter.Interval())
	}
}
