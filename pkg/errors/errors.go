package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure by how the pipeline should react to it,
// not by where it happened.
type ErrorCode string

const (
	// CodeTransientExternal covers timeouts, 5xx and rate limits from
	// collaborators. Retryable within the call's deadline.
	CodeTransientExternal ErrorCode = "TRANSIENT_EXTERNAL"
	// CodePermanentExternal covers 4xx, auth failures and schema
	// mismatches. Never retried.
	CodePermanentExternal ErrorCode = "PERMANENT_EXTERNAL"
	// CodeInputMalformed covers empty, oversized or badly encoded
	// utterances. No handler is dispatched.
	CodeInputMalformed ErrorCode = "INPUT_MALFORMED"
	// CodeInternalInvariant covers broken internal invariants (score out
	// of range, vector dimension mismatch, missing required field).
	CodeInternalInvariant ErrorCode = "INTERNAL_INVARIANT"
	// CodeDeadline marks a stage that ran past its budget.
	CodeDeadline ErrorCode = "DEADLINE"
	// CodeCapacity marks a request rejected by the in-flight bound.
	CodeCapacity ErrorCode = "CAPACITY"
	// CodeNotFound marks a missing record (memory, entity, conversation).
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// AppError carries a taxonomy code alongside the message and cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with an arbitrary code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError with a cause.
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

// NewTransient creates a retryable external error.
func NewTransient(message string, cause error) *AppError {
	return &AppError{Code: CodeTransientExternal, Message: message, Err: cause}
}

// NewPermanent creates a non-retryable external error.
func NewPermanent(message string, cause error) *AppError {
	return &AppError{Code: CodePermanentExternal, Message: message, Err: cause}
}

// NewInputMalformed creates an input validation error.
func NewInputMalformed(message string) *AppError {
	return &AppError{Code: CodeInputMalformed, Message: message}
}

// NewInvariant creates an internal invariant violation.
func NewInvariant(message string) *AppError {
	return &AppError{Code: CodeInternalInvariant, Message: message}
}

// NewDeadline creates a deadline error.
func NewDeadline(message string) *AppError {
	return &AppError{Code: CodeDeadline, Message: message}
}

// NewCapacity creates a capacity rejection.
func NewCapacity(message string) *AppError {
	return &AppError{Code: CodeCapacity, Message: message}
}

// NewNotFound creates a missing-record error.
func NewNotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// CodeOf extracts the taxonomy code, or "" for plain errors.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool { return is(err, CodeTransientExternal) }

// IsDeadline reports whether err is a deadline overrun.
func IsDeadline(err error) bool { return is(err, CodeDeadline) }

// IsCapacity reports whether err is an in-flight bound rejection.
func IsCapacity(err error) bool { return is(err, CodeCapacity) }

// IsInputMalformed reports whether err is a bad-input rejection.
func IsInputMalformed(err error) bool { return is(err, CodeInputMalformed) }

// IsNotFound reports whether err is a missing record.
func IsNotFound(err error) bool { return is(err, CodeNotFound) }
