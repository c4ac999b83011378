package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"claimsqa/internal/domain"
	"claimsqa/internal/observability"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
// Rate limiting and timeouts are checked first because they usually arrive
// wrapped in a stage failure.
func MapDomainError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrUpstreamRateLimited):
		return http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMITED", "an upstream service is rate limiting requests; retry later"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "PIPELINE_TIMEOUT", "processing did not finish in time"
	case errors.Is(err, domain.ErrInvalidMediaType):
		return http.StatusBadRequest, "INVALID_MEDIA_TYPE", "unsupported media type; allowed: image/jpeg, image/jpg, image/png, application/pdf"
	case errors.Is(err, domain.ErrEmptyDocument):
		return http.StatusBadRequest, "EMPTY_DOCUMENT", "uploaded document is empty"
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size"
	case errors.Is(err, domain.ErrInvalidQuestion):
		return http.StatusBadRequest, "INVALID_QUESTION", "question must not be empty"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found"
	case errors.Is(err, domain.ErrArtifactNotFound):
		return http.StatusNotFound, "ARTIFACT_NOT_FOUND", "searchable PDF not available for this document"
	case errors.Is(err, domain.ErrNormalizationFailed):
		return http.StatusBadGateway, "NORMALIZATION_FAILED", "document analysis failed"
	case errors.Is(err, domain.ErrExtractionSchemaViolation):
		return http.StatusBadGateway, "EXTRACTION_SCHEMA_VIOLATION", "extraction did not conform to the claims schema"
	case errors.Is(err, domain.ErrCompletionFailed):
		return http.StatusBadGateway, "COMPLETION_FAILED", "completion service failed"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "document store unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
func HandleError(c *gin.Context, err error) {
	status, code, msg := MapDomainError(err)
	logger := observability.LoggerFromContext(c.Request.Context())
	if status >= 500 {
		logger.Error().Err(err).Str("code", code).Msg("handler: request failed")
	} else {
		logger.Debug().Err(err).Str("code", code).Msg("handler: request rejected")
	}
	RespondError(c, status, code, msg)
}
