package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure surfaced by the orchestration core.
type ErrorCode string

const (
	// ErrCodeValidation indicates tool parameters failed schema validation.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	// ErrCodeToolNotFound indicates the tool id is not registered.
	ErrCodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"
	// ErrCodeToolDisabled indicates the tool exists but is not callable for
	// this provider, or the gating policy blocked it.
	ErrCodeToolDisabled ErrorCode = "TOOL_DISABLED"
	// ErrCodeState indicates an invalid state transition, such as resolving
	// an already-terminal pending action.
	ErrCodeState ErrorCode = "STATE_ERROR"
	// ErrCodeTimeout indicates an external call exceeded its budget.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeUnknown is the fallback for unclassified failures.
	ErrCodeUnknown ErrorCode = "UNKNOWN_ERROR"
)

// Error is a classified failure. Every error that crosses the orchestrator
// or pipeline boundary is wrapped into one of these.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// NewError creates a classified error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a classified error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

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

// Retryable reports whether the caller may retry without investigation.
func (e *Error) Retryable() bool {
	return e.Code == ErrCodeTimeout
}

// Classify returns err as a *Error, wrapping it as UNKNOWN_ERROR when it is
// not already classified.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return WrapError(ErrCodeUnknown, err.Error(), err)
}
