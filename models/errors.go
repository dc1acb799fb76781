package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and retry classification.
const (
	// ErrCodeInfra marks infrastructure misconfiguration or a caller contract
	// violation — retrying cannot help.
	ErrCodeInfra = "INFRA_MISCONFIGURED"

	// ErrCodeBrowser marks a transient browser failure: launch, navigation,
	// network, context or page creation. Retryable.
	ErrCodeBrowser = "BROWSER_TRANSIENT"

	// ErrCodeParse marks required page structure missing after the page was
	// reached — the same DOM fails identically on retry.
	ErrCodeParse = "PARSE_FAILED"

	// ErrCodeDBTransient marks a retryable database failure: connection loss,
	// deadlock, serialization conflict, pool exhaustion.
	ErrCodeDBTransient = "DB_TRANSIENT"

	// ErrCodeDBInvariant marks a database invariant violation, e.g. an update
	// whose target row does not exist. Caller bug, never a legitimate race.
	ErrCodeDBInvariant = "DB_INVARIANT"

	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code and an
// explicit retryability tag. It implements the error interface and supports
// wrapping via Unwrap.
type ScrapeError struct {
	Code      string
	Message   string
	Retryable bool
	Err       error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// NewInfraError reports a non-retryable infrastructure misconfiguration.
func NewInfraError(message string, err error) *ScrapeError {
	return &ScrapeError{Code: ErrCodeInfra, Message: message, Retryable: false, Err: err}
}

// NewBrowserError reports a retryable browser failure.
func NewBrowserError(message string, err error) *ScrapeError {
	return &ScrapeError{Code: ErrCodeBrowser, Message: message, Retryable: true, Err: err}
}

// NewParseError reports a non-retryable page-structure failure.
func NewParseError(message string, err error) *ScrapeError {
	return &ScrapeError{Code: ErrCodeParse, Message: message, Retryable: false, Err: err}
}

// NewDBTransientError reports a retryable database failure.
func NewDBTransientError(message string, err error) *ScrapeError {
	return &ScrapeError{Code: ErrCodeDBTransient, Message: message, Retryable: true, Err: err}
}

// NewDBInvariantError reports a non-retryable database invariant violation.
func NewDBInvariantError(message string, err error) *ScrapeError {
	return &ScrapeError{Code: ErrCodeDBInvariant, Message: message, Retryable: false, Err: err}
}

// IsRetryable reports whether err may succeed on retry. Errors outside the
// ScrapeError taxonomy are treated as retryable so an unclassified transient
// failure is not silently promoted to a permanent one.
func IsRetryable(err error) bool {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return true
}

// CodeOf returns the taxonomy code of err, or ErrCodeInternal when err is not
// a ScrapeError.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}
