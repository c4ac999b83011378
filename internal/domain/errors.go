package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrInvalidMediaType          = errors.New("unsupported media type")
	ErrEmptyDocument             = errors.New("document is empty")
	ErrFileTooLarge              = errors.New("file exceeds maximum allowed size")
	ErrInvalidQuestion           = errors.New("question must not be empty")
	ErrDocumentNotFound          = errors.New("document not found")
	ErrNormalizationFailed       = errors.New("document normalization failed")
	ErrExtractionSchemaViolation = errors.New("extraction does not conform to the schema")
	ErrCompletionFailed          = errors.New("completion service failed")
	ErrUpstreamRateLimited       = errors.New("upstream service rate limited")
	ErrStoreUnavailable          = errors.New("document store unavailable")
	ErrArtifactNotFound          = errors.New("artifact not found")
)

// UpstreamError reports a non-success response from an external service.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Service, e.StatusCode, e.Body)
}

// Retryable reports whether the call may succeed if repeated.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Is makes a 429 response match ErrUpstreamRateLimited.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamRateLimited && e.StatusCode == http.StatusTooManyRequests
}
