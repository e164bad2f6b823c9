// Package apperror defines the error taxonomy shared by the clinic core:
// validation, conflict, precondition and persistence failures, plus the
// mapping of each kind onto an HTTP status for the echo handlers.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrNotFound is returned when a single entity looked up by identity does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed or missing input. Nothing has been written.
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

// ConflictError reports a violated state invariant. Retryable is set for
// identifier collisions where re-running the whole atomic unit can succeed.
type ConflictError struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *ConflictError) Error() string { return e.Reason }

func (e *ConflictError) Unwrap() error { return e.Err }

// PreconditionError reports that a required resource is missing or not in the
// expected state, e.g. merging charges when no open bill exists.
type PreconditionError struct {
	Resource string
	Reason   string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Resource, e.Reason)
}

// PersistenceError wraps a storage failure during a write. The enclosing
// transaction has been rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func Conflict(format string, args ...interface{}) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// RetryableConflict marks an identifier collision surfaced by a unique constraint.
func RetryableConflict(reason string, err error) error {
	return &ConflictError{Reason: reason, Retryable: true, Err: err}
}

func Precondition(resource, reason string) error {
	return &PreconditionError{Resource: resource, Reason: reason}
}

func Persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsRetryable reports whether err is a conflict that may succeed on a fresh attempt.
func IsRetryable(err error) bool {
	var c *ConflictError
	return errors.As(err, &c) && c.Retryable
}

func IsPrecondition(err error) bool {
	var p *PreconditionError
	return errors.As(err, &p)
}

func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}

// HTTPStatus maps an error onto the status code a handler should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case IsValidation(err):
		return http.StatusBadRequest
	case IsConflict(err):
		return http.StatusConflict
	case IsPrecondition(err):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts err into an echo.HTTPError. Persistence failures are not
// echoed back to the caller verbatim.
func ToHTTP(err error) *echo.HTTPError {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal error")
	}
	return echo.NewHTTPError(status, err.Error())
}
