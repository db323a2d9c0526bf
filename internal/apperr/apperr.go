// Package apperr defines the typed error taxonomy shared by the session,
// reconciliation and fiscal services. Handlers and the fiscal controller
// branch on these types to decide whether an operation is retryable, so
// services must never collapse them into generic errors.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed input before any state is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidation builds a field-level validation error.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError signals that an invariant would be violated by a concurrent
// operation (second open session, double close). Callers should re-fetch
// current state before retrying.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func NewConflict(reason string) *ConflictError { return &ConflictError{Reason: reason} }

// InvalidStateError signals an operation against a session or sale in the
// wrong lifecycle state. Not retryable without changing the request.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string { return e.Reason }

func NewInvalidState(reason string) *InvalidStateError { return &InvalidStateError{Reason: reason} }

// TransientExternalError wraps the fiscal gateway's "submission in progress"
// condition. The fiscal controller retries it exactly once before surfacing.
type TransientExternalError struct {
	Message string
}

func (e *TransientExternalError) Error() string { return e.Message }

func NewTransientExternal(msg string) *TransientExternalError {
	return &TransientExternalError{Message: msg}
}

// ExternalError is any other fiscal gateway failure. Terminal; the raw
// gateway message is retained because it often carries remediation
// instructions from the fiscal authority.
type ExternalError struct {
	Message string
}

func (e *ExternalError) Error() string { return e.Message }

func NewExternal(msg string) *ExternalError { return &ExternalError{Message: msg} }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsInvalidState reports whether err is (or wraps) an InvalidStateError.
func IsInvalidState(err error) bool {
	var s *InvalidStateError
	return errors.As(err, &s)
}

// IsTransientExternal reports whether err is (or wraps) a TransientExternalError.
func IsTransientExternal(err error) bool {
	var t *TransientExternalError
	return errors.As(err, &t)
}

// IsExternal reports whether err is (or wraps) an ExternalError.
func IsExternal(err error) bool {
	var x *ExternalError
	return errors.As(err, &x)
}
