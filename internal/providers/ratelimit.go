package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a hard minimum interval between permitted calls
// across all goroutines sharing the instance. It is a strict serializing
// throttle, not a token bucket: there is no burst allowance, and callers
// arriving faster than the interval queue up and are released one at a
// time at the fixed cadence. Scanned-book providers enforce tight
// per-minute quotas where bursts convert directly into 429s.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	// next is the earliest instant the next call may proceed.
	next time.Time

	totalPermitted int64
	totalWaited    time.Duration
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	Interval       time.Duration `json:"interval"`
	NextAvailable  time.Duration `json:"next_available"`
	TotalPermitted int64         `json:"total_permitted"`
	TotalWaited    time.Duration `json:"total_waited"`
}

// NewRateLimiter creates a limiter permitting callsPerMinute calls.
func NewRateLimiter(callsPerMinute float64) *RateLimiter {
	if callsPerMinute <= 0 {
		callsPerMinute = 60
	}
	return &RateLimiter{
		interval: time.Duration(float64(time.Minute) / callsPerMinute),
	}
}

// Wait blocks until the minimum interval since the last permitted call has
// elapsed, or the context is cancelled. Each successful return reserves the
// caller's slot, so two consecutive returns are always separated by at
// least the interval.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now()
	at := r.next
	if at.Before(now) {
		at = now
	}
	r.next = at.Add(r.interval)
	r.mu.Unlock()

	wait := time.Until(at)
	if wait <= 0 {
		r.recordPermit(0)
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		// Release the reserved slot unless a later caller has already
		// stacked a reservation behind it, so cancellation does not
		// leave a permanent hole in the cadence.
		r.mu.Lock()
		if r.next.Equal(at.Add(r.interval)) {
			r.next = at
		}
		r.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		r.recordPermit(wait)
		return nil
	}
}

func (r *RateLimiter) recordPermit(waited time.Duration) {
	r.mu.Lock()
	r.totalPermitted++
	r.totalWaited += waited
	r.mu.Unlock()
}

// Interval returns the enforced minimum interval between calls.
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	var nextIn time.Duration
	if until := time.Until(r.next); until > 0 {
		nextIn = until
	}
	return RateLimiterStatus{
		Interval:       r.interval,
		NextAvailable:  nextIn,
		TotalPermitted: r.totalPermitted,
		TotalWaited:    r.totalWaited,
	}
}
