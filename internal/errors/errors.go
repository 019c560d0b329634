// Package errors classifies failures so HTTP handlers and the admin CLI can
// report them without leaking causes to callers.
package errors

import (
	"errors"
	"net/http"
)

// ErrorCode is the category of an AppError.
type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnavailable marks a dependency outage: IdP, profile source or store.
	ErrCodeUnavailable ErrorCode = "unavailable"
	ErrCodeTimeout     ErrorCode = "timeout"
	ErrCodeCanceled    ErrorCode = "canceled"
	ErrCodeInternal    ErrorCode = "internal"
)

// HTTPStatus is the response status used when an error of this code reaches a caller.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// AppError pairs a caller-safe Message with the underlying Cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Field   string // input field at fault, if any
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *AppError) Unwrap() error { return e.Cause }

func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Unavailable wraps a dependency failure. A nil err yields nil.
func Unavailable(err error, message string) *AppError {
	return Wrap(err, ErrCodeUnavailable, message)
}

// Wrap attaches code and message to err. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// CodeOf returns the code of the outermost AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// FieldOf returns the field of the outermost AppError in err's chain, or "".
func FieldOf(err error) string {
	if appErr, ok := asAppError(err); ok {
		return appErr.Field
	}
	return ""
}

// PublicMessage is the message safe to show a caller: the AppError message,
// or the generic status text for anything unclassified.
func PublicMessage(err error) string {
	if appErr, ok := asAppError(err); ok {
		return appErr.Message
	}
	return http.StatusText(http.StatusInternalServerError)
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
