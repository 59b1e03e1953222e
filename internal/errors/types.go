package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// ErrorType represents the classification of errors for cascade decisions.
type ErrorType int

const (
	// ErrorTypeTransient - the same request may succeed against another
	// provider or at a later time (timeouts, 5xx, rate limits).
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent - retrying or cascading will not help
	// (invalid request, auth failure).
	ErrorTypePermanent
	// ErrorTypeUnavailable - the target is gated off (circuit open).
	ErrorTypeUnavailable
)

// TransientError marks an error as safe to cascade past.
type TransientError struct {
	Err        error
	StatusCode int // HTTP status code if applicable
	RetryAfter int // seconds, from a Retry-After header when present
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks an error that must surface immediately.
type PermanentError struct {
	Err        error
	StatusCode int
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// UnavailableError reports that a target is gated off without having been tried.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error is worth cascading past.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}
	// Circuit-open counts as transient from the caller's perspective: the
	// next target in the chain may still serve the request.
	var unavailableErr *UnavailableError
	if errors.As(err, &unavailableErr) {
		return true
	}

	if isNetworkError(err) {
		return true
	}
	if code := HTTPStatusCode(err); code > 0 {
		return isTransientHTTPStatus(code)
	}
	return false
}

// IsPermanent reports whether the error must surface without cascading.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return true
	}
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return false
	}
	if code := HTTPStatusCode(err); code > 0 {
		return isPermanentHTTPStatus(code)
	}
	return false
}

// IsUnavailable reports whether the error came from a gated-off target.
func IsUnavailable(err error) bool {
	var unavailableErr *UnavailableError
	return errors.As(err, &unavailableErr)
}

// GetErrorType classifies an error. Unknown errors default to permanent so
// a misclassified failure cannot drive an endless cascade.
func GetErrorType(err error) ErrorType {
	switch {
	case IsUnavailable(err):
		return ErrorTypeUnavailable
	case IsTransient(err):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// FromHTTPStatus wraps err with a classification derived from an HTTP status code.
func FromHTTPStatus(statusCode int, err error) error {
	if err == nil {
		return nil
	}
	if isTransientHTTPStatus(statusCode) {
		return &TransientError{Err: err, StatusCode: statusCode}
	}
	return &PermanentError{Err: err, StatusCode: statusCode}
}

// HTTPStatusCode extracts a status code from a classified error, or from an
// error message of the form "... status 503: ..." emitted by provider clients.
func HTTPStatusCode(err error) int {
	if err == nil {
		return 0
	}
	var transientErr *TransientError
	if errors.As(err, &transientErr) && transientErr.StatusCode > 0 {
		return transientErr.StatusCode
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) && permanentErr.StatusCode > 0 {
		return permanentErr.StatusCode
	}

	lower := strings.ToLower(err.Error())
	idx := strings.Index(lower, "status ")
	if idx < 0 {
		return 0
	}
	rest := lower[idx+len("status "):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	code, convErr := strconv.Atoi(rest[:end])
	if convErr != nil || code < 100 || code > 599 {
		return 0
	}
	return code
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"deadline exceeded",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isPermanentHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusMethodNotAllowed,
		http.StatusConflict,
		http.StatusGone,
		http.StatusRequestEntityTooLarge,
		http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// NewTransientError creates a transient classification around err.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// NewPermanentError creates a permanent classification around err.
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}
