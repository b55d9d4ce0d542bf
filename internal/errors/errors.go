// Package errors defines the service error taxonomy surfaced at the HTTP
// boundary.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/coopenergy/platform/internal/app/storage"
)

// Code identifies a class of service error.
type Code string

const (
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeProtectedState Code = "PROTECTED_STATE"
	CodeLockTimeout    Code = "LOCK_TIMEOUT"
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeBadRequest     Code = "BAD_REQUEST"
	CodeRateLimited    Code = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable    Code = "UNAVAILABLE"
	CodeInternal       Code = "INTERNAL"
)

// ServiceError is an error with an HTTP status and a stable code.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails returns the error with an extra detail attached.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func NotFound(resource, id string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s %s not found", resource, id), nil)
}

func Conflict(message string, err error) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, err)
}

func ProtectedState(message string, err error) *ServiceError {
	return newError(CodeProtectedState, http.StatusBadRequest, message, err)
}

func LockTimeout(err error) *ServiceError {
	return newError(CodeLockTimeout, http.StatusServiceUnavailable, "scope is busy, retry later", err)
}

func Validation(message string, err error) *ServiceError {
	return newError(CodeValidation, http.StatusUnprocessableEntity, message, err)
}

func BadRequest(message string, err error) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, err)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

func Unavailable(message string, err error) *ServiceError {
	return newError(CodeUnavailable, http.StatusServiceUnavailable, message, err)
}

func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError returns the ServiceError in err's chain, if any.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// FromError classifies err into a ServiceError. Storage sentinels map to
// their codes; everything else is internal.
func FromError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	if svcErr := GetServiceError(err); svcErr != nil {
		return svcErr
	}
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		return newError(CodeNotFound, http.StatusNotFound, err.Error(), err)
	case stderrors.Is(err, storage.ErrDuplicate):
		return Conflict(err.Error(), err)
	case stderrors.Is(err, storage.ErrProtectedState):
		return ProtectedState(err.Error(), err)
	case stderrors.Is(err, storage.ErrLockTimeout):
		return LockTimeout(err)
	default:
		return Internal("internal server error", err)
	}
}
