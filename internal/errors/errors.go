// Package errors defines the service error taxonomy and its HTTP mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	CodeBadRequest       ErrorCode = "BAD_REQUEST"
	CodeValidation       ErrorCode = "VALIDATION_ERROR"
	CodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	CodeAuthFailed       ErrorCode = "AUTHENTICATION_FAILED"
	CodeInvalidToken     ErrorCode = "INVALID_TOKEN"
	CodeForbidden        ErrorCode = "FORBIDDEN"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	CodeRateLimit        ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable      ErrorCode = "SERVICE_UNAVAILABLE"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// ServiceError is an error that knows how it is rendered to API clients.
// Message is the one-line summary, Errors the individual problems.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	Errors     []string
	Details    map[string]interface{}
	Data       interface{} // rendered as the response data, if set
	HTTPStatus int
	Err        error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Errors) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(e.Errors, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a detail entry and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithData sets the payload returned alongside the failure.
func (e *ServiceError) WithData(data interface{}) *ServiceError {
	e.Data = data
	return e
}

// New builds a ServiceError with a custom summary and status.
func New(status int, code ErrorCode, message string, errs ...string) *ServiceError {
	return &ServiceError{Code: code, Message: message, Errors: nonNil(errs), HTTPStatus: status}
}

// Field formats a field-scoped validation message.
func Field(field, msg string) string {
	return fmt.Sprintf("%s: %s", field, msg)
}

// BadRequest reports a malformed request.
func BadRequest(message string, errs ...string) *ServiceError {
	return New(http.StatusBadRequest, CodeBadRequest, message, errs...)
}

// Validation reports invalid input; entries are usually built with Field.
func Validation(errs ...string) *ServiceError {
	return New(http.StatusBadRequest, CodeValidation, "Validation error.", errs...)
}

// Unauthorized reports missing credentials.
func Unauthorized(detail string) *ServiceError {
	e := New(http.StatusUnauthorized, CodeUnauthorized,
		"Authentication credentials were not provided.",
		"You must be logged in to access this resource.")
	if detail != "" {
		e.WithDetails("reason", detail)
	}
	return e
}

// AuthenticationFailed reports rejected credentials.
func AuthenticationFailed(err error) *ServiceError {
	e := New(http.StatusUnauthorized, CodeAuthFailed, "Authentication failed.", "Invalid authentication credentials.")
	e.Err = err
	return e
}

// InvalidToken reports an unusable bearer or refresh token.
func InvalidToken(err error) *ServiceError {
	e := New(http.StatusUnauthorized, CodeInvalidToken, "Authentication failed.", "Invalid authentication credentials.")
	e.Err = err
	return e
}

// Forbidden reports an authenticated caller lacking permission.
func Forbidden() *ServiceError {
	return New(http.StatusForbidden, CodeForbidden, "Permission denied.", "You do not have permission to perform this action.")
}

// NotFound reports a missing or invisible resource.
func NotFound(resource string) *ServiceError {
	e := New(http.StatusNotFound, CodeNotFound, "Resource not found.", "The requested resource was not found.")
	if resource != "" {
		e.WithDetails("resource", resource)
	}
	return e
}

// Conflict reports a uniqueness violation.
func Conflict(message string, errs ...string) *ServiceError {
	return New(http.StatusBadRequest, CodeConflict, message, errs...)
}

// MethodNotAllowed reports an unsupported HTTP method.
func MethodNotAllowed(method string) *ServiceError {
	return New(http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed.",
		fmt.Sprintf("Method %s not allowed.", method))
}

// RateLimitExceeded reports a throttled caller.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(http.StatusTooManyRequests, CodeRateLimit, "Request throttled.",
		fmt.Sprintf("Request was throttled. Expected available in %s.", window)).
		WithDetails("limit", limit)
}

// Unavailable reports a dependency outage.
func Unavailable(message string, err error) *ServiceError {
	e := New(http.StatusServiceUnavailable, CodeUnavailable, message)
	e.Err = err
	if err != nil {
		e.Errors = []string{err.Error()}
	}
	return e
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *ServiceError {
	errs := []string{}
	switch {
	case message != "":
		errs = append(errs, message)
	case err != nil:
		errs = append(errs, err.Error())
	}
	e := New(http.StatusInternalServerError, CodeInternal, "Server error, please try again later.", errs...)
	e.Err = err
	return e
}

// GetServiceError extracts a ServiceError from the chain, if present.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

// IsNotFound reports whether err is a not-found service error.
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsValidation reports whether err is a validation service error.
func IsValidation(err error) bool { return HasCode(err, CodeValidation) }

// Is and As re-export the standard helpers for callers importing this package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func nonNil(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}
