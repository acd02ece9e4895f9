package httpclient

import (
	"context"
	"net/http"
	"time"
)

// DefaultBackoff is the wait before each retry: 1s, 2s, 4s.
var DefaultBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// RetryTransport retries idempotent read requests (GET, HEAD) on transport
// errors and 5xx / 429 responses. Other methods pass through untouched.
type RetryTransport struct {
	Base    http.RoundTripper
	Backoff []time.Duration

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryTransport wraps base (http.DefaultTransport when nil) with the default backoff.
func NewRetryTransport(base http.RoundTripper) *RetryTransport {
	return &RetryTransport{Base: base, Backoff: DefaultBackoff}
}

// New returns an *http.Client using RetryTransport with the given timeout per attempt chain.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewRetryTransport(nil),
	}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if !retryable(req.Method) {
		return base.RoundTrip(req)
	}

	sleep := t.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = base.RoundTrip(req)
		if !shouldRetry(resp, err) || attempt >= len(t.Backoff) {
			return resp, err
		}
		if resp != nil {
			resp.Body.Close()
		}
		if serr := sleep(req.Context(), t.Backoff[attempt]); serr != nil {
			return nil, serr
		}
	}
}

func retryable(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == ""
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
