// Package apperr defines the error taxonomy surfaced to API callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindRateLimit      Kind = "rate_limit"
	KindBusinessLogic  Kind = "business_logic"
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindDatabase       Kind = "database"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same call may succeed.
func (e *Error) Retryable() bool { return e.Kind == KindDatabase }

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindBusinessLogic:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WithDetail attaches a detail key-value pair.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Authentication(message string) *Error { return New(KindAuthentication, message) }

func Authorization(message string) *Error { return New(KindAuthorization, message) }

func RateLimited(message string) *Error { return New(KindRateLimit, message) }

func NotFound(resource string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource))
}

// BusinessLogic wraps a domain rule violation, keeping its message.
func BusinessLogic(err error) *Error {
	return &Error{Kind: KindBusinessLogic, Message: err.Error(), Err: err}
}

func BusinessLogicf(format string, args ...any) *Error {
	return New(KindBusinessLogic, fmt.Sprintf(format, args...))
}

// Validation reports field-level input problems.
func Validation(fields map[string]string) *Error {
	e := New(KindValidation, "invalid input")
	if len(fields) > 0 {
		e.WithDetail("fields", fields)
	}
	return e
}

func Database(err error) *Error {
	return &Error{Kind: KindDatabase, Message: "database failure", Err: err}
}

// KindOf returns the kind of err, or KindDatabase for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindDatabase
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
