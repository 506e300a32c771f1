package binance

import (
	"errors"
	"fmt"
	"time"
)

var (
	errShortKlineRow  = errors.New("kline row has fewer fields than expected")
	errNoFundingEntry = errors.New("empty funding rate response")
)

// NetworkError wraps transport failures: dial errors, timeouts, broken
// connections. These are always retryable.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitedError reports an HTTP 429 response. RetryAfter carries the
// server-requested wait when the Retry-After header was present, zero
// otherwise.
type RateLimitedError struct {
	URL        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited on %s, retry after %v", e.URL, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited on %s", e.URL)
}

// HTTPStatusError reports any non-2xx, non-429 response. Body holds a
// truncated copy of the response payload for diagnostics.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// DecodeError reports a response body that could not be unmarshaled into
// the expected shape.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ConfigurationError reports a request that cannot be built, such as a
// signed call issued without credentials.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("client misconfigured: %s", e.Reason)
}

// IsRetryable reports whether the request that produced err may be retried.
// Network failures, 429s and 5xx responses qualify; client errors and
// decode failures do not.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var rlErr *RateLimitedError
	if errors.As(err, &rlErr) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return false
}

// RetryAfterHint extracts the server-requested delay from err, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rlErr *RateLimitedError
	if errors.As(err, &rlErr) && rlErr.RetryAfter > 0 {
		return rlErr.RetryAfter, true
	}
	return 0, false
}
