package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies failures observed while driving the dashboard session
type ErrorType string

const (
	// ErrorTypeSessionExpired means the server discarded our view state; the
	// only cure is a full session teardown and replay.
	ErrorTypeSessionExpired ErrorType = "session_expired"
	// ErrorTypeTransport covers network failures and timeouts
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeExtraction means a required control or marker was absent from a
	// rendered page. Treated as session drift, not a permanent incompatibility.
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeStructural means a fetched panel fragment did not contain the
	// expected result container. The panel is skipped, not retried.
	ErrorTypeStructural ErrorType = "structural"
	// ErrorTypeStorage covers local filesystem failures
	ErrorTypeStorage ErrorType = "storage"
	ErrorTypeUnknown ErrorType = "unknown"
)

// Error carries the failure classification alongside the message
type Error struct {
	Type    ErrorType
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// New creates a typed error
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates a typed error with a formatted message
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// TypeOf returns the classification of err, unwrapping as needed
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRecoverable reports whether an error type is cured by a full session
// reset and replay. Structural mismatches are not: refetching the same panel
// in the same session yields the same fragment.
func IsRecoverable(t ErrorType) bool {
	switch t {
	case ErrorTypeSessionExpired, ErrorTypeTransport, ErrorTypeExtraction:
		return true
	case ErrorTypeStructural, ErrorTypeStorage:
		return false
	default:
		return false
	}
}

// IsSessionExpired reports whether err is an expiry-class failure
func IsSessionExpired(err error) bool {
	return TypeOf(err) == ErrorTypeSessionExpired
}
