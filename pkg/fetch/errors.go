package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the worker.
var (
	// ErrInvalidIdentifier is returned when an item fails validation.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrNetworkUnavailable is returned when the connectivity preflight
	// still fails on the final allowed attempt.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrRetriesExhausted is returned when all retry attempts are exhausted.
	ErrRetriesExhausted = errors.New("retry attempts exhausted")

	// ErrCancelled is returned when the context is cancelled mid-item.
	ErrCancelled = errors.New("fetch cancelled")
)

// ErrorClass classifies a single failed attempt. The class decides whether
// the attempt is retried and which backoff applies.
type ErrorClass string

const (
	// ErrorClassNotFound represents HTTP 404 - terminal, never retried.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassRateLimit represents HTTP 429 - retried with extended backoff.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx server errors - retried.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassClient represents other 4xx responses - retried with
	// normal backoff (the upstream occasionally returns spurious 4xx).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassNetwork represents timeout/DNS/connection errors - retried.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassMalformed represents a 200 whose body fails to parse -
	// retried like any transient failure.
	ErrorClassMalformed ErrorClass = "malformed"

	// ErrorClassStorage represents a local filesystem failure while
	// persisting the payload - retried.
	ErrorClassStorage ErrorClass = "storage"
)

// APIError represents an upstream HTTP error with classification context.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("api %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to its error class.
// Classification is status-code dispatch only; error message text is
// never inspected.
func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusNotFound:
		return ErrorClassNotFound
	case code == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case code >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// shouldRetry determines if a failed attempt should be retried based on
// its classification. Only 404 short-circuits the attempt loop.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassNotFound:
		return false
	case ErrorClassRateLimit, ErrorClassServer, ErrorClassClient,
		ErrorClassNetwork, ErrorClassMalformed, ErrorClassStorage:
		return true
	default:
		return false
	}
}
