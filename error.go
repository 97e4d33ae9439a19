package mailrelay

import (
	"errors"
	"fmt"
)

// Domain error codes - the transport layer maps these to HTTP status codes.
const (
	EINVALID      = "invalid"       // 400 - Invalid input
	EATTACHMENT   = "attachment"    // 400 - Attachment processing failure
	EUNAUTHORIZED = "unauthorized"  // 401 - Bad or missing API key
	EFORBIDDEN    = "forbidden"     // 403 - Missing or invalid signature
	ERATELIMIT    = "rate_limit"    // 429 - Too many requests
	ECONFIG       = "configuration" // 500 - Missing server configuration
	EINTERNAL     = "internal"      // 500 - Internal server error
)

// Error represents an application-specific error.
type Error struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message, safe for clients.
	Message string `json:"message"`

	// Err is the underlying error (not exposed to clients).
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new application error with a formatted message.
func Errorf(code string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an underlying error with application context.
func WrapError(code string, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorCode extracts the error code from an error.
// Returns EINTERNAL if the error is not an *Error.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage extracts the user-safe message from an error.
// Returns a generic message if the error is not an *Error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}

// IsErrorCode checks if an error has the specified error code.
func IsErrorCode(err error, code string) bool {
	return ErrorCode(err) == code
}

// Invalid creates a validation error.
func Invalid(format string, args ...any) *Error {
	return Errorf(EINVALID, format, args...)
}

// Unauthorized creates an authentication error.
func Unauthorized(format string, args ...any) *Error {
	return Errorf(EUNAUTHORIZED, format, args...)
}

// Forbidden creates a signature-authorization error.
func Forbidden(format string, args ...any) *Error {
	return Errorf(EFORBIDDEN, format, args...)
}

// RateLimited creates a rate-limit error.
func RateLimited(format string, args ...any) *Error {
	return Errorf(ERATELIMIT, format, args...)
}

// ConfigError creates a server-configuration error, wrapping the cause.
// The cause is logged server-side and never surfaced to clients.
func ConfigError(message string, err error) *Error {
	return WrapError(ECONFIG, message, err)
}

// Internal creates an internal error, wrapping the underlying cause.
func Internal(message string, err error) *Error {
	return WrapError(EINTERNAL, message, err)
}
