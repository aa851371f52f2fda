package provider

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_UnderCapacity(t *testing.T) {
	// GIVEN: A limiter allowing 3 requests per 10 seconds
	rl := NewRateLimiter(3, 10*time.Second)

	// WHEN: 3 acquisitions arrive back to back
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait %d failed: %v", i, err)
		}
	}

	// THEN: All pass without blocking and the window is full
	if got := rl.InFlight(); got != 3 {
		t.Errorf("InFlight = %d, want 3", got)
	}
}

func TestRateLimiter_SlidingWindowExpiry(t *testing.T) {
	// GIVEN: A full window whose entries are about to expire
	rl := NewRateLimiter(2, 10*time.Second)
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	// WHEN: The clock advances past the window
	now = now.Add(11 * time.Second)

	// THEN: The window is empty again and a new acquisition passes
	if got := rl.InFlight(); got != 0 {
		t.Errorf("InFlight after expiry = %d, want 0", got)
	}
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait after expiry failed: %v", err)
	}
}

func TestRateLimiter_FullWindowReportsSleep(t *testing.T) {
	// GIVEN: A full window with a frozen clock
	rl := NewRateLimiter(1, 10*time.Second)
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if _, ok := rl.tryAcquire(); !ok {
		t.Fatal("first acquisition should pass")
	}

	// WHEN: Another acquisition is attempted 4 seconds later
	now = now.Add(4 * time.Second)
	sleep, ok := rl.tryAcquire()

	// THEN: It is refused with the remaining window as the sleep hint
	if ok {
		t.Fatal("second acquisition should be refused")
	}
	if sleep != 6*time.Second {
		t.Errorf("sleep = %v, want 6s", sleep)
	}
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	// GIVEN: A full window that will not free up soon
	rl := NewRateLimiter(1, time.Minute)
	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	// WHEN: A second Wait runs under a short deadline
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := rl.Wait(short)

	// THEN: It returns the context error instead of blocking
	if err != context.DeadlineExceeded {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}
