// Package errors defines the typed error taxonomy shared by the storefront
// components and its HTTP surface.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	CodeValidation       ErrorCode = "VALIDATION"
	CodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	CodeUnauthenticated  ErrorCode = "UNAUTHENTICATED"
	CodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeRemoteRejected   ErrorCode = "REMOTE_REJECTED"
	CodeTransport        ErrorCode = "TRANSPORT"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
	CodeInternal         ErrorCode = "INTERNAL"
)

// ServiceError is a failure that carries a stable code, a human readable
// message suitable for a notification, and the HTTP status to render it with.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value pair to the error and returns it.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Validation reports malformed caller input.
func Validation(message string) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, message, nil)
}

// CapacityExceeded reports that a collection limit was reached.
func CapacityExceeded(resource string, limit int) *ServiceError {
	return newError(CodeCapacityExceeded, http.StatusConflict,
		fmt.Sprintf("You can save up to %d %s", limit, resource), nil).
		WithDetails("limit", limit)
}

// Unauthenticated reports that no session identity is available.
func Unauthenticated(message string) *ServiceError {
	if message == "" {
		message = "Please log in to continue"
	}
	return newError(CodeUnauthenticated, http.StatusUnauthorized, message, nil)
}

// Unauthorized reports that the remote backend rejected the session.
func Unauthorized(message string, err error) *ServiceError {
	if message == "" {
		message = "Your session has expired, please log in again"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, err)
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", resource), nil).
		WithDetails("id", id)
}

// RemoteRejected reports a well-formed failure response from the backend.
func RemoteRejected(message string, err error) *ServiceError {
	if message == "" {
		message = "The request could not be completed"
	}
	return newError(CodeRemoteRejected, http.StatusBadGateway, message, err)
}

// Transport reports a network or decoding failure talking to the backend.
func Transport(message string, err error) *ServiceError {
	if message == "" {
		message = "Something went wrong, please try again"
	}
	return newError(CodeTransport, http.StatusBadGateway, message, err)
}

// RateLimitExceeded reports that a client exceeded its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "Too many requests", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Internal reports an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError returns the first ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

// FromRemote classifies a failed call to the commerce backend. Errors that
// report IsUnauthorized become CodeUnauthorized, errors that report
// IsRejection become CodeRemoteRejected, and everything else is treated as a
// transport failure. message is the user facing text for the non-auth cases.
func FromRemote(err error, message string) *ServiceError {
	if err == nil {
		return nil
	}
	if se := GetServiceError(err); se != nil {
		return se
	}

	var auth interface{ IsUnauthorized() bool }
	if stderrors.As(err, &auth) && auth.IsUnauthorized() {
		return Unauthorized("", err)
	}
	var rejected interface{ IsRejection() bool }
	if stderrors.As(err, &rejected) && rejected.IsRejection() {
		return RemoteRejected(message, err)
	}
	return Transport(message, err)
}
