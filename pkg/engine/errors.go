package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of a reconciliation failure.
type ErrorClass string

const (
	// ErrorClassParameter indicates invalid or disallowed input.
	// Parameter errors are always raised before any remote mutation.
	ErrorClassParameter ErrorClass = "parameter"

	// ErrorClassNotFound indicates that a required scope, such as the parent
	// CPC, or a partition whose facts were requested does not exist.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassOperation indicates a failed remote operation. The remote
	// message is carried verbatim in the wrapped error.
	ErrorClassOperation ErrorClass = "operation"

	// ErrorClassTimeout indicates that a bounded status wait elapsed.
	ErrorClassTimeout ErrorClass = "timeout"
)

// Prefix returns the name used to prefix rendered error messages.
func (c ErrorClass) Prefix() string {
	switch c {
	case ErrorClassParameter:
		return "ParameterError"
	case ErrorClassNotFound:
		return "NotFoundError"
	case ErrorClassOperation:
		return "OperationError"
	case ErrorClassTimeout:
		return "TimeoutError"
	default:
		return "Error"
	}
}

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the partition or CPC the error refers to, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the remote operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface. The rendered message always starts
// with the class prefix, e.g. "ParameterError: ...".
func (e *EngineError) Error() string {
	msg := e.Class.Prefix() + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewParameterError creates a new parameter error.
func NewParameterError(format string, args ...interface{}) *EngineError {
	return &EngineError{
		Class:   ErrorClassParameter,
		Message: fmt.Sprintf(format, args...),
		Code:    ErrCodeValidation,
	}
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(format string, args ...interface{}) *EngineError {
	return &EngineError{
		Class:   ErrorClassNotFound,
		Message: fmt.Sprintf(format, args...),
		Code:    ErrCodeNotFound,
	}
}

// NewOperationError creates a new operation error wrapping the remote failure.
func NewOperationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassOperation,
		Message: message,
		Code:    ErrCodeRemoteFailed,
		Err:     err,
	}
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTimeout,
		Message: message,
		Code:    ErrCodeTimeout,
		Err:     err,
	}
}

// AsOperationError returns err when it is already classified and wraps it
// in an OperationError otherwise.
func AsOperationError(message string, err error) *EngineError {
	var e *EngineError
	if errors.As(err, &e) {
		return e
	}
	return NewOperationError(message, err)
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resource string) *EngineError {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithCause sets the wrapped error.
func (e *EngineError) WithCause(err error) *EngineError {
	e.Err = err
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ClassOf returns the class of err, or the empty class when err is not an
// EngineError.
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsParameterError returns true if the error is classified as a parameter error.
func IsParameterError(err error) bool {
	return ClassOf(err) == ErrorClassParameter
}

// IsNotFound returns true if the error is classified as not found.
func IsNotFound(err error) bool {
	return ClassOf(err) == ErrorClassNotFound
}

// IsOperationError returns true if the error is classified as a remote operation failure.
func IsOperationError(err error) bool {
	return ClassOf(err) == ErrorClassOperation
}

// IsTimeout returns true if the error is classified as a timeout.
func IsTimeout(err error) bool {
	return ClassOf(err) == ErrorClassTimeout
}

// Common error codes.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeRemoteFailed  = "REMOTE_FAILED"
	ErrCodePolicyDenied  = "POLICY_DENIED"
	ErrCodeUnknownStatus = "UNKNOWN_STATUS"
)
