// Package errors provides structured application errors and their HTTP mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable category sent to clients as "code".
type ErrorCode string

const (
	ErrCodeNotFound    ErrorCode = "not_found"
	ErrCodeConflict    ErrorCode = "conflict"
	ErrCodeValidation  ErrorCode = "validation"
	ErrCodeForeignKey  ErrorCode = "foreign_key"
	ErrCodeUnavailable ErrorCode = "unavailable" // a backing store could not be reached
	ErrCodeInternal    ErrorCode = "internal"
	ErrCodeTimeout     ErrorCode = "timeout"
	ErrCodeCanceled    ErrorCode = "canceled"
)

// statusClientClosedRequest is nginx's 499; the caller is gone so nobody reads it.
const statusClientClosedRequest = 499

var statusByCode = map[ErrorCode]int{
	ErrCodeNotFound:    http.StatusNotFound,
	ErrCodeConflict:    http.StatusConflict,
	ErrCodeValidation:  http.StatusBadRequest,
	ErrCodeForeignKey:  http.StatusBadRequest,
	ErrCodeUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:     http.StatusGatewayTimeout,
	ErrCodeCanceled:    statusClientClosedRequest,
	ErrCodeInternal:    http.StatusInternalServerError,
}

// AppError carries a code and a client-safe message. Cause is kept for logs and
// errors.Is but never shown to clients.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Field   string // offending input field, for validation errors
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// ErrorClass tags metrics with the error code.
func (e *AppError) ErrorClass() string { return string(e.Code) }

// New returns an AppError without a cause.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NotFoundf returns a not_found error with a formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// ValidationField returns a validation error naming the offending field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Wrap attaches code and message to err. It returns nil for a nil err.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Is reports whether err has an AppError with code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode returns the code of the first AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HTTPStatus maps err to a response status. Anything without a known code is a 500.
func HTTPStatus(err error) int {
	if status, ok := statusByCode[GetCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the AppError message, or "internal error" for anything else.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "internal error"
}
