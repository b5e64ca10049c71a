// Package domainerrors defines the coded error type shared by every layer of the
// guarded executor. Services return *Error values; transports and audit map the
// Code to their own vocabulary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error kind independently of its message.
type Code string

const (
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"

	CodeValidation        Code = "validation_failed"
	CodeUnauthorized      Code = "unauthorized"
	CodeRateLimitExceeded Code = "rate_limit_exceeded"
	CodeIntegrityFailed   Code = "integrity_failed"
	CodeSensitiveDataLeak Code = "sensitive_data_leak"
	CodeExecutionFailed   Code = "execution_failed"
	CodeRecoveryFailed    Code = "recovery_failed"
	CodeAuditSinkDegraded Code = "audit_sink_degraded"
	CodeUnavailable       Code = "unavailable"
	CodeInvalidTransition Code = "invalid_transition"
)

// Error is a domain error carrying a Code, a safe message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost *Error in err's chain, or
// CodeInternal when the chain carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is reports whether the outermost domain error in err's chain has code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
