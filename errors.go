package roomcast

import (
	"errors"
	"fmt"
)

// Error represents a roomcast library error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for roomcast operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates a database operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeMembershipResolution indicates the subscriber's memberships could
	// not be resolved. Fatal to token issuance: no partial token is ever issued.
	ErrCodeMembershipResolution = "MEMBERSHIP_RESOLUTION_ERROR"

	// ErrCodeCacheUnavailable indicates the channel cache backend failed.
	// Non-fatal: resolution degrades to direct recomputation.
	ErrCodeCacheUnavailable = "CACHE_UNAVAILABLE"

	// ErrCodePublishFailure indicates a hub publish failed. Retryable with
	// bounded retries; the message remains persisted regardless.
	ErrCodePublishFailure = "PUBLISH_FAILURE"

	// ErrCodeAuthorizationExpired indicates a capability token is past its
	// expiry. Never retried silently: the client must confirm presence and
	// request a fresh token.
	ErrCodeAuthorizationExpired = "AUTHORIZATION_EXPIRED"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrInvalidConfiguration is returned when service configuration is invalid.
	ErrInvalidConfiguration = &Error{
		Code:    ErrCodeConfiguration,
		Message: "invalid service configuration",
	}

	// ErrAuthorizationExpired is returned when a capability token has expired.
	ErrAuthorizationExpired = &Error{
		Code:    ErrCodeAuthorizationExpired,
		Message: "capability token expired",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	var rcErr *Error
	if errors.As(err, &rcErr) {
		return rcErr.Code == ErrCodeNoData
	}
	return errors.Is(err, ErrNoData)
}

// IsAuthorizationExpired checks if an error indicates an expired capability
// token, as opposed to a plain network failure. Clients use this to decide
// between silent reconnection and the explicit presence prompt.
func IsAuthorizationExpired(err error) bool {
	var rcErr *Error
	if errors.As(err, &rcErr) {
		return rcErr.Code == ErrCodeAuthorizationExpired
	}
	return errors.Is(err, ErrAuthorizationExpired)
}
