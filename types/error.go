package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

// External call error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrMalformedOutput    ErrorCode = "MALFORMED_OUTPUT"
	ErrNotConfigured      ErrorCode = "NOT_CONFIGURED"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Source     string    `json:"source,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithSource sets the name of the external source that produced the error.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// AsError 提取错误链中的 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether any *Error in the chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	if e, ok := AsError(err); ok {
		return e.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// WrapError wraps err into an *Error unless it already is one.
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return NewError(code, message).WithCause(err)
}

// NewInvalidRequestError 构造 400 错误
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(http.StatusBadRequest)
}

// NewRateLimitError 构造可重试的 429 错误
func NewRateLimitError(source, message string) *Error {
	return NewError(ErrRateLimited, message).
		WithHTTPStatus(http.StatusTooManyRequests).
		WithRetryable(true).
		WithSource(source)
}

// NewUpstreamError 构造上游错误
func NewUpstreamError(source string, status int, message string) *Error {
	return NewError(ErrUpstreamError, message).
		WithHTTPStatus(status).
		WithRetryable(status >= http.StatusInternalServerError).
		WithSource(source)
}

// NewTimeoutError 构造上游超时错误
func NewTimeoutError(source string, cause error) *Error {
	return NewError(ErrUpstreamTimeout, "upstream call timed out").
		WithHTTPStatus(http.StatusGatewayTimeout).
		WithRetryable(true).
		WithSource(source).
		WithCause(cause)
}

// FromHTTPStatus maps a non-2xx response status to a structured error.
func FromHTTPStatus(source string, status int, message string) *Error {
	switch {
	case status == http.StatusTooManyRequests:
		return NewRateLimitError(source, message)
	case status == http.StatusUnauthorized:
		return NewError(ErrUnauthorized, message).WithHTTPStatus(status).WithSource(source)
	case status == http.StatusForbidden:
		return NewError(ErrForbidden, message).WithHTTPStatus(status).WithSource(source)
	case status == http.StatusNotFound:
		return NewError(ErrNotFound, message).WithHTTPStatus(status).WithSource(source)
	case status == http.StatusBadRequest:
		return NewError(ErrInvalidRequest, message).WithHTTPStatus(status).WithSource(source)
	case status == http.StatusServiceUnavailable:
		return NewError(ErrServiceUnavailable, message).WithHTTPStatus(status).WithRetryable(true).WithSource(source)
	default:
		return NewUpstreamError(source, status, message)
	}
}
