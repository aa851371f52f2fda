package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestRetrier_RetriesOnRateLimitThenSucceeds(t *testing.T) {
	// GIVEN: An operation that is rate limited twice before succeeding
	r := newRetrier(3, time.Second)
	r.sleep = noSleep

	attempts := 0
	op := func() error {
		attempts++
		if attempts <= 2 {
			return &UpstreamError{Provider: "timetrack", Endpoint: "users.list", StatusCode: http.StatusTooManyRequests}
		}
		return nil
	}

	// WHEN: Running through the retrier
	err := r.do(context.Background(), op)

	// THEN: It succeeds on the third attempt
	if err != nil {
		t.Fatalf("do failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetrier_StopsAfterMaxRetries(t *testing.T) {
	// GIVEN: An operation that always returns a server error
	r := newRetrier(3, time.Second)
	r.sleep = noSleep

	attempts := 0
	op := func() error {
		attempts++
		return &UpstreamError{Provider: "payroll", Endpoint: "/companies/x", StatusCode: http.StatusBadGateway}
	}

	// WHEN: Running through the retrier
	err := r.do(context.Background(), op)

	// THEN: It gives up after the initial attempt plus 3 retries
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
}

func TestRetrier_ClientErrorFailsImmediately(t *testing.T) {
	// GIVEN: An operation returning 404
	r := newRetrier(3, time.Second)
	r.sleep = noSleep

	attempts := 0
	op := func() error {
		attempts++
		return &UpstreamError{Provider: "timetrack", Endpoint: "users.get", StatusCode: http.StatusNotFound}
	}

	// WHEN: Running through the retrier
	err := r.do(context.Background(), op)

	// THEN: No retry happens
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetrier_BackoffDoubles(t *testing.T) {
	// GIVEN: A retrier recording its sleep durations
	r := newRetrier(3, time.Second)
	var waits []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	op := func() error {
		return &UpstreamError{Provider: "payroll", Endpoint: "/x", StatusCode: 500}
	}

	// WHEN: The operation exhausts its retries
	_ = r.do(context.Background(), op)

	// THEN: Waits follow 1s, 2s, 4s
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("got %d waits, want %d", len(waits), len(want))
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait %d = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestRetryable_Classification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &UpstreamError{StatusCode: 429}, true},
		{"server error", &UpstreamError{StatusCode: 503}, true},
		{"not found", &UpstreamError{StatusCode: 404}, false},
		{"bad request", &UpstreamError{StatusCode: 400}, false},
		{"deadline", &UpstreamError{Err: context.DeadlineExceeded}, true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryable(tc.err); got != tc.want {
				t.Errorf("retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
