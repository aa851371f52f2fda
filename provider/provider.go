/*
Package provider contains the HTTP clients for the two external HR systems.

PURPOSE:
  Fetches raw payloads from the payroll API (REST, token pagination) and the
  time-tracking API (RPC-style POST, offset pagination) and normalizes them
  into neutral payload shapes the sync service upserts from.

DESIGN:
  - Both clients share one sliding-window RateLimiter and one bounded
    exponential-backoff retry loop. Retry triggers on 429, 5xx and
    timeouts; 4xx other than 429 fail immediately.
  - Payload normalization happens here, at the boundary: the rest of the
    system never sees upstream field names.
  - Configuration is injected through the Config structs; there are no
    package-level settings.

ERROR HANDLING:
  Failures surface as *UpstreamError wrapping ErrUpstream, so callers can
  classify with errors.Is(err, provider.ErrUpstream) without inspecting
  status codes.

SEE ALSO:
  - ratelimit.go: sliding-window limiter
  - retry.go: backoff loop
  - syncer: the consumer of these clients
*/
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrUpstream is the sentinel wrapped by every provider failure.
var ErrUpstream = errors.New("upstream provider error")

// UpstreamError reports a failed call to an external system.
type UpstreamError struct {
	Provider   string // "payroll" or "timetrack"
	Endpoint   string
	StatusCode int // 0 when the request never completed
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUpstream
}

// Is lets errors.Is(err, ErrUpstream) match without unwrapping twice.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// retryable reports whether the error is worth another attempt:
// rate limiting, server-side failures, and timeouts.
func retryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		if ue.StatusCode == http.StatusTooManyRequests || ue.StatusCode >= 500 {
			return true
		}
		if ue.StatusCode != 0 {
			return false
		}
		err = ue.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// httpDoer is implemented by *http.Client; swapped in tests.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
