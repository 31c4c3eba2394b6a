// Package fault defines the typed error taxonomy shared across the node core.
//
// Every component returns *fault.Error (usually wrapped with fmt.Errorf %w)
// so callers can branch on the code with errors.As without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes a fault.
type Code string

const (
	// CodeNotFound indicates a missing atom, ref, schema, or transform.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidField indicates a field name unknown to the schema or a
	// value that does not fit the field variant.
	CodeInvalidField Code = "INVALID_FIELD"

	// CodeInvalidPermission indicates the permission check rejected the caller.
	CodeInvalidPermission Code = "INVALID_PERMISSION"

	// CodeInvalidTransform indicates a DSL parse or evaluation failure.
	CodeInvalidTransform Code = "INVALID_TRANSFORM"

	// CodeInvalidData indicates a serialization or storage-layer failure.
	CodeInvalidData Code = "INVALID_DATA"

	// CodeMapping indicates a field-mapper resolution failure.
	CodeMapping Code = "MAPPING_ERROR"

	// CodeTimeout indicates a response wait elapsed without an answer.
	// Distinct from a business-logic failure carried inside a response.
	CodeTimeout Code = "TIMEOUT"

	// CodeDisconnected indicates the event bus (or a subscription) was
	// closed while a caller was still using it.
	CodeDisconnected Code = "DISCONNECTED"

	// CodeCycleDetected indicates a transform cascade revisited a transform
	// already executed within the same mutation, or exceeded the depth bound.
	CodeCycleDetected Code = "CYCLE_DETECTED"
)

// Error is a structured fault with a code and optional diagnostic details.
type Error struct {
	Code    Code
	Message string
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a fault with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a diagnostic key/value pair and returns the fault.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// CodeOf extracts the fault code from err, unwrapping as needed.
// Returns empty string if err carries no *Error.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Is reports whether err carries a fault with the given code.
// Uses errors.As to handle wrapped errors.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsTimeout reports whether err is a timeout fault.
func IsTimeout(err error) bool { return Is(err, CodeTimeout) }

// IsNotFound reports whether err is a not-found fault.
func IsNotFound(err error) bool { return Is(err, CodeNotFound) }

// IsCycle reports whether err is a cycle-detection fault.
func IsCycle(err error) bool { return Is(err, CodeCycleDetected) }
