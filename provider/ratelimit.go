package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter: at most maxRequests acquisitions
// per window. Wait blocks until a slot frees up or the context is done.
//
// The wait is an iterative loop: after sleeping, the window is re-checked
// under the lock rather than recursing.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu       sync.Mutex
	requests []time.Time

	// now is swapped in tests.
	now func() time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Wait blocks until the caller may proceed, then records the acquisition.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		sleep, ok := r.tryAcquire()
		if ok {
			return nil
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire records an acquisition if the window has capacity; otherwise
// returns how long to sleep before the oldest entry expires.
func (r *RateLimiter) tryAcquire() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	// Drop entries that slid out of the window.
	kept := r.requests[:0]
	for _, t := range r.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.requests = kept

	if len(r.requests) < r.maxRequests {
		r.requests = append(r.requests, now)
		return 0, true
	}

	sleep := r.requests[0].Add(r.window).Sub(now)
	if sleep <= 0 {
		sleep = time.Millisecond
	}
	return sleep, false
}

// InFlight returns how many acquisitions currently occupy the window.
func (r *RateLimiter) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.window)
	n := 0
	for _, t := range r.requests {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
