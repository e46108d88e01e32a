// Package domainerrors provides coded errors for crossing module boundaries.
//
// Services translate infrastructure sentinels (pkg/platform/sentinel) and
// validation failures into coded errors; transport layers map codes onto
// HTTP statuses without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and branching.
type Code string

const (
	// CodeInvalidInput marks malformed identifiers or payload primitives.
	CodeInvalidInput Code = "invalid_input"
	// CodeValidation marks payloads that parse but violate field rules.
	CodeValidation Code = "validation_failed"
	// CodeBadRequest marks structurally broken requests.
	CodeBadRequest Code = "bad_request"
	// CodeUnsupportedAction marks an action key absent from the catalog.
	CodeUnsupportedAction Code = "unsupported_action"
	// CodeMissingIdempotencyKey marks a dispatch without a correlation id.
	CodeMissingIdempotencyKey Code = "missing_idempotency_key"
	// CodeInvalidInterval marks a temporal change whose end precedes its start.
	CodeInvalidInterval Code = "invalid_interval"
	// CodeNotFound marks entities that could not be resolved.
	CodeNotFound Code = "not_found"
	// CodeConflict marks uniqueness or state conflicts.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks illegal state transitions.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeUnauthorized marks missing or invalid credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeUnavailable marks infrastructure failures that are safe to retry.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks unexpected failures; details stay server-side.
	CodeInternal Code = "internal_error"
)

// Error carries a code, a caller-safe message and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is treat two coded errors with the same code and message
// as equivalent, regardless of cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-safe message from err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
