package provider

import (
	"context"
	"time"
)

// retrier runs an operation with bounded exponential backoff. Attempt n
// (zero-based) waits baseDelay * 2^n before re-running. Only retryable
// errors (429, 5xx, timeouts) trigger another attempt.
type retrier struct {
	maxRetries int
	baseDelay  time.Duration

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func newRetrier(maxRetries int, baseDelay time.Duration) *retrier {
	return &retrier{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      sleepCtx,
	}
}

func (r *retrier) do(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || !retryable(err) || attempt >= r.maxRetries {
			return err
		}
		wait := r.baseDelay * (1 << attempt)
		if serr := r.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
