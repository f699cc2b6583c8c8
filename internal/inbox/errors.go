package inbox

import "errors"

// Code classifies a failure into the stable categories surfaced to callers.
type Code string

const (
	CodeValidation      Code = "validation"
	CodeUnauthenticated Code = "unauthenticated"
	CodeForbidden       Code = "forbidden"
	CodeNotFound        Code = "not_found"
)

// Error is a categorized operation failure. Validation errors optionally
// carry per-field messages.
type Error struct {
	Code    Code
	Message string
	Fields  map[string][]string
}

func (e *Error) Error() string {
	return e.Message
}

// Validation builds a validation error with per-field messages.
func Validation(message string, fields map[string][]string) *Error {
	return &Error{Code: CodeValidation, Message: message, Fields: fields}
}

// Forbidden builds an authorization error: authenticated but not allowed.
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

// NotFound builds a missing-entity error.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// Unauthenticated builds a missing/invalid-credential error.
func Unauthenticated(message string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: message}
}

// CodeOf extracts the category of an error, or "" for uncategorized errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
