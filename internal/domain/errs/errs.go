// Package errs defines the error taxonomy shared by all domain services.
// Services return *Error values; handlers translate them to HTTP statuses.
// Raw storage errors never cross the service boundary.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error.
type Kind string

const (
	NotFound               Kind = "not_found"
	InvalidInput           Kind = "invalid_input"
	PrescriptionRequired   Kind = "prescription_required"
	PrescriptionInvalid    Kind = "prescription_invalid"
	InsufficientStock      Kind = "insufficient_stock"
	InvalidStateTransition Kind = "invalid_state_transition"
	StorageUnavailable     Kind = "storage_unavailable"
)

// Error is a structured domain error: a kind, a human-readable message, and
// the identifiers relevant to the failure.
type Error struct {
	Kind    Kind              `json:"kind"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records its underlying cause. Used at the
// storage boundary so pgx errors surface as StorageUnavailable instead of
// leaking upward.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// With attaches a detail (typically an entity id) and returns the same Error
// for chaining.
func (e *Error) With(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// KindOf returns the Kind of err, or "" when err is not a domain Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is a domain Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code handlers respond with.
// Unclassified errors map to 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case InvalidInput, PrescriptionRequired, PrescriptionInvalid:
		return http.StatusBadRequest
	case InsufficientStock, InvalidStateTransition:
		return http.StatusConflict
	case StorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
