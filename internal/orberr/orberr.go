// Package orberr defines the error taxonomy shared by the store, the
// persistence backends and the HTTP endpoint. Callers classify failures
// with errors.Is against the sentinel values below.
package orberr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound signals an operation against a missing record id.
	ErrNotFound = errors.New("record not found")

	// ErrForbidden signals a privileged operation attempted without the
	// administrator role.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation signals a rejected write, e.g. an interest category
	// outside the fixed domain set.
	ErrValidation = errors.New("validation failed")

	// ErrAuthRequired signals a privileged operation with no actor attached
	// to the context.
	ErrAuthRequired = errors.New("authentication required")

	// ErrCorrupt signals unreadable or malformed durable state. The
	// persistence backend recovers from it once; a second consecutive
	// failure surfaces to the caller.
	ErrCorrupt = errors.New("durable state corrupt")
)

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrNotFound, args)...)
}

// Forbiddenf wraps ErrForbidden with a formatted detail message.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrForbidden, args)...)
}

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrValidation, args)...)
}

// Corruptf wraps ErrCorrupt with a formatted detail message.
func Corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrCorrupt, args)...)
}

func prepend(err error, args []any) []any {
	return append([]any{err}, args...)
}

// HTTPStatus maps a taxonomy error onto an HTTP status code for the
// shared-store endpoint. Centralized here so handlers stay free of
// error-classification switches.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrCorrupt):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
