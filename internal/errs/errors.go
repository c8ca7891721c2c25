// Package errs provides the unified error type used across relicmart.
//
// Every subsystem (database backends, provisioner, repository, server, …)
// wraps its native errors into *errs.Error before returning them. Callers use
// the Is* predicates, or HTTPStatus at the transport edge, without importing
// driver-specific packages.
//
// Usage:
//
//	// In a backend, wrap native errors:
//	return errs.Wrap(errs.ErrKindConnectionFailed, "probe failed", pgErr)
//
//	// In a handler, translate to a status code:
//	w.WriteHeader(errs.HTTPStatus(err))
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrKind categorises an error without exposing backend-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // id does not exist
	ErrKindConnectionFailed         // cannot reach or authenticate to the database
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // any other query failure
	ErrKindValidation               // missing or invalid input
	ErrKindSchema                   // DDL / provisioning failure
	ErrKindUnavailable              // no active database configuration
	ErrKindUnauthorized             // missing or invalid credentials
	ErrKindRateLimited              // caller exceeded its request budget
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindValidation:
		return "validation"
	case ErrKindSchema:
		return "schema"
	case ErrKindUnavailable:
		return "unavailable"
	case ErrKindUnauthorized:
		return "unauthorized"
	case ErrKindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all relicmart subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with fmt-style formatting.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a missing item.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a SQL execution failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsValidation reports whether err was caused by bad input from the caller.
func IsValidation(err error) bool {
	return KindOf(err) == ErrKindValidation
}

// IsSchema reports whether err came from table provisioning.
func IsSchema(err error) bool {
	return KindOf(err) == ErrKindSchema
}

// IsUnavailable reports whether err means no database is configured.
func IsUnavailable(err error) bool {
	return KindOf(err) == ErrKindUnavailable
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	return KindOf(err) == ErrKindUnauthorized
}

// KindOf extracts the ErrKind from the outermost *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// HTTPStatus maps an error to the status code the HTTP layer answers with.
// Connection, schema and query failures are all backend failures (500).
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrKindValidation:
		return http.StatusBadRequest
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindUnavailable:
		return http.StatusServiceUnavailable
	case ErrKindUnauthorized:
		return http.StatusUnauthorized
	case ErrKindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
