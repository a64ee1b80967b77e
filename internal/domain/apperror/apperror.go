// Package apperror defines the typed errors returned by workflow operations.
// Every error carries a Code the HTTP layer maps to a status and a human message
// that is safe to return to the caller.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an application error
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeBusinessRule  Code = "BUSINESS_RULE_VIOLATION"
	CodeInternal      Code = "INTERNAL"
)

// Error is an application error with a code, a caller-facing message and an optional cause
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with a formatted message
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to a cause
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return New(CodeValidation, format, args...)
}

// NotFound reports a missing resource scoped to the caller's company
func NotFound(resource string, id int64) *Error {
	return New(CodeNotFound, "%s %d not found", resource, id)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(CodeStateConflict, format, args...)
}

func BusinessRule(format string, args ...interface{}) *Error {
	return New(CodeBusinessRule, format, args...)
}

// Internal hides the cause behind a generic message
func Internal(err error) *Error {
	return Wrap(err, CodeInternal, "internal error")
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code
func Is(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

// HTTPStatus maps a code to its HTTP status
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeStateConflict:
		return http.StatusConflict
	case CodeBusinessRule:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message to show the caller for err
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != CodeInternal {
		return appErr.Message
	}
	return "internal error"
}
