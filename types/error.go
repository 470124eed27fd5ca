package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Graph structure error codes
const (
	ErrDuplicateNode ErrorCode = "DUPLICATE_NODE"
	ErrUnknownNode   ErrorCode = "UNKNOWN_NODE"
	ErrEmptyGraph    ErrorCode = "EMPTY_GRAPH"
	ErrCycleDetected ErrorCode = "CYCLE_DETECTED"
)

// Run error codes
const (
	ErrNoEntryPoint            ErrorCode = "NO_ENTRY_POINT"
	ErrIterationBudgetExceeded ErrorCode = "ITERATION_BUDGET_EXCEEDED"
	ErrNodeExecution           ErrorCode = "NODE_EXECUTION"
	ErrMissingConfig           ErrorCode = "MISSING_CONFIG"
	ErrInvalidConfig           ErrorCode = "INVALID_CONFIG"
	ErrAgentNotFound           ErrorCode = "AGENT_NOT_FOUND"
	ErrToolNotFound            ErrorCode = "TOOL_NOT_FOUND"
	ErrSubgraphNotFound        ErrorCode = "SUBGRAPH_NOT_FOUND"
	ErrCheckpointNotFound      ErrorCode = "CHECKPOINT_NOT_FOUND"
	ErrInvalidDefinition       ErrorCode = "INVALID_DEFINITION"
	ErrRunNotFound             ErrorCode = "RUN_NOT_FOUND"
	ErrTimeout                 ErrorCode = "TIMEOUT"
	ErrCancelled               ErrorCode = "CANCELLED"
)

// Service error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code, so sentinel values work
// with errors.Is after being copied with a different message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
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

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the first error code found in the chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether any error in the chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	return errors.Is(err, &Error{Code: code})
}

// HTTPStatusOf maps an error to a response status code.
func HTTPStatusOf(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	switch e.Code {
	case ErrInvalidRequest, ErrInvalidDefinition, ErrInvalidConfig, ErrMissingConfig,
		ErrDuplicateNode, ErrUnknownNode, ErrEmptyGraph, ErrCycleDetected, ErrNoEntryPoint:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrRunNotFound, ErrCheckpointNotFound:
		return http.StatusNotFound
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
