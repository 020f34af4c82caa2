// Package errors provides domain-specific errors for the flowtone
// application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common domain error conditions.
var (
	ErrConfigurationMissing  = errors.New("no API credential configured")
	ErrNotConnected          = errors.New("not connected to generation backend")
	ErrSessionActive         = errors.New("a session is already active")
	ErrNoActiveSession       = errors.New("no active session")
	ErrNotSuspended          = errors.New("session is not suspended")
	ErrRuleNotFound          = errors.New("routing rule not found")
	ErrClassifierUnavailable = errors.New("steering classifier unavailable")
)

// ErrorCode categorizes errors for handling and reporting.
type ErrorCode string

const (
	CodeConnection     ErrorCode = "CONNECTION"     // Handshake/transport failure, no retry
	CodeBackend        ErrorCode = "BACKEND"        // Error payload from the generation service
	CodeSend           ErrorCode = "SEND"           // Single command failed to transmit
	CodeClassification ErrorCode = "CLASSIFICATION" // Intent service failure
	CodeConfiguration  ErrorCode = "CONFIG"
	CodeValidation     ErrorCode = "VALIDATION"
	CodeNotFound       ErrorCode = "NOT_FOUND"
)

// FlowtoneError wraps errors with additional context for debugging and
// handling.
type FlowtoneError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns a formatted error string including the code, message, and
// cause if present.
func (e *FlowtoneError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and
// errors.As.
func (e *FlowtoneError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowtoneError with the given code, message, and
// optional cause.
func NewError(code ErrorCode, message string, cause error) *FlowtoneError {
	return &FlowtoneError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error's context and returns the
// error, allowing method chaining.
func WithContext(err *FlowtoneError, key string, value interface{}) *FlowtoneError {
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context[key] = value
	return err
}

// CodeOf extracts the error code from an error chain, or empty when the
// chain carries no FlowtoneError.
func CodeOf(err error) ErrorCode {
	var fe *FlowtoneError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Is reports whether err matches target using errors.Is semantics.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target and sets
// target to that error value.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
