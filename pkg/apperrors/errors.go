// Package apperrors defines the error taxonomy shared by the access-control engine.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
)

// Kind classifies an error for callers deciding whether to retry or how to respond.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindDependency    Kind = "dependency"
)

// pqUniqueViolation is the Postgres SQLSTATE for unique_violation
const pqUniqueViolation = "23505"

// Error is a classified engine error
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed input
func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

// Validationf reports malformed input with a formatted message
func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports an operation refused because of current state
func Conflict(message string) error {
	return &Error{Kind: KindConflict, Message: message}
}

// NotFound reports a missing resource by id
func NotFound(resource string, id interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %v", resource, id)}
}

// Forbidden reports a caller that is not allowed to perform an operation
func Forbidden(message string) error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// Dependency wraps a failure of persistence or another collaborator
func Dependency(op string, err error) error {
	return &Error{Kind: KindDependency, Message: op, Err: err}
}

// FromStorage classifies a driver error. Unique violations become conflicts,
// everything else is a dependency failure.
func FromStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return &Error{Kind: KindConflict, Message: op + ": already exists", Err: err}
	}
	return Dependency(op, err)
}

// KindOf returns the kind of err, or an empty Kind for unclassified errors
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsForbidden(err error) bool  { return KindOf(err) == KindAuthorization }
func IsDependency(err error) bool { return KindOf(err) == KindDependency }

// Retryable reports whether a caller may retry the failed operation
func Retryable(err error) bool {
	return IsDependency(err)
}

// HTTPStatus maps an error to the status code a transport should answer with
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
