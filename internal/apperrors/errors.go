// Package apperrors defines the error kinds that cross every component
// boundary in the coordination backend (spec §7). A *Error carries enough
// structure for a façade to pick an HTTP status without string-sniffing,
// and enough context for a log line to carry a correlation id.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error kinds named in spec §7. It is deliberately a
// closed set — callers switch on it, they never compare error strings.
type Kind string

const (
	Validation           Kind = "validation"
	AuthMissing          Kind = "auth_missing"
	Forbidden            Kind = "forbidden"
	NotFound             Kind = "not_found"
	Conflict             Kind = "conflict"
	DependencyUnavailable Kind = "dependency_unavailable"
	Internal             Kind = "internal"
)

// statusByKind is the stable Kind -> HTTP status mapping from spec §6/§7.
var statusByKind = map[Kind]int{
	Validation:            http.StatusBadRequest,
	AuthMissing:           http.StatusUnauthorized,
	Forbidden:             http.StatusForbidden,
	NotFound:              http.StatusNotFound,
	Conflict:              http.StatusConflict,
	DependencyUnavailable: http.StatusServiceUnavailable,
	Internal:              http.StatusInternalServerError,
}

// Error is the concrete error type returned across the coordinator, ledger,
// aggregator, and collaborator boundaries.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Code    string // optional machine-readable sub-code, e.g. "INSUFFICIENT_QUANTITY"
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// StatusCode returns the stable HTTP status for this error's kind.
func (e *Error) StatusCode() int {
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// New creates an Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps an underlying cause.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf creates a wrapped Error with a formatted message.
func Wrapf(cause error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithDetails attaches extra context and returns the same error (mutates in
// place, mirroring the teacher's fluent builder style).
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

func (e *Error) WithDetailsf(format string, args ...any) *Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// WithCode attaches a machine-readable sub-code (e.g. INSUFFICIENT_QUANTITY).
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// KindOf extracts the Kind of an error, defaulting to Internal for errors
// that were never wrapped in an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Is reports whether err (or something it wraps) is an *Error of the given
// kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
