package completion

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"claimsqa/internal/domain"
)

// RateLimitError indicates a completion provider returned HTTP 429.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	Provider   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Is lets callers match any provider rate limit with domain.ErrUpstreamRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == domain.ErrUpstreamRateLimited
}

// Retryable is false: a rate-limited provider is skipped by FallbackCompleter
// until its Retry-After elapses instead of being hammered by retries.
func (e *RateLimitError) Retryable() bool {
	return false
}

// NewRateLimitError creates a RateLimitError. If retryAfterSecs is 0, defaults to 60s.
func NewRateLimitError(provider string, err error, retryAfterSecs int) *RateLimitError {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &RateLimitError{
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Provider:   provider,
	}
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}

// StatusError converts a non-2xx provider response into a typed error:
// *RateLimitError for 429, *domain.UpstreamError otherwise.
func StatusError(provider string, resp *http.Response, body []byte) error {
	upstream := &domain.UpstreamError{
		Service:    provider,
		StatusCode: resp.StatusCode,
		Body:       Truncate(string(body), 500),
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
		return NewRateLimitError(provider, upstream, retryAfter)
	}
	return upstream
}

// ErrTruncated is returned when the provider stopped because of the output token limit.
var ErrTruncated = errors.New("output truncated: response exceeded output token limit")

// Truncate shortens s for inclusion in error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
