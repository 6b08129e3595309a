package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engines.
type ErrorCode string

// Agent session error codes
const (
	ErrActionLimit       ErrorCode = "ACTION_LIMIT"
	ErrTokenLimit        ErrorCode = "TOKEN_LIMIT"
	ErrDurationLimit     ErrorCode = "DURATION_LIMIT"
	ErrConsecutiveErrors ErrorCode = "CONSECUTIVE_ERRORS"
	ErrApprovalRequired  ErrorCode = "APPROVAL_REQUIRED"
	ErrResponseTruncated ErrorCode = "RESPONSE_TRUNCATED"
)

// Tool error codes
const (
	ErrToolNotFound   ErrorCode = "TOOL_NOT_FOUND"
	ErrToolValidation ErrorCode = "TOOL_VALIDATION"
	ErrToolTimeout    ErrorCode = "TOOL_TIMEOUT"
	ErrToolExecution  ErrorCode = "TOOL_EXECUTION"
)

// Workflow error codes
const (
	ErrInvalidDefinition ErrorCode = "INVALID_DEFINITION"
	ErrGraphCycle        ErrorCode = "GRAPH_CYCLE"
	ErrNodeFailed        ErrorCode = "NODE_FAILED"
	ErrUnknownNodeType   ErrorCode = "UNKNOWN_NODE_TYPE"
	ErrMissingVariable   ErrorCode = "MISSING_VARIABLE"
	ErrInvalidRunState   ErrorCode = "INVALID_RUN_STATE"
	ErrNotFound          ErrorCode = "NOT_FOUND"
)

// Infrastructure error codes
const (
	ErrPersistence ErrorCode = "PERSISTENCE"
	ErrQueue       ErrorCode = "QUEUE"
	ErrInternal    ErrorCode = "INTERNAL_ERROR"
	ErrCanceled    ErrorCode = "CANCELED"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether any *Error in the chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	if e, ok := AsError(err); ok {
		return e.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}
