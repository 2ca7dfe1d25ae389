// Package errors provides unified error handling for GrepWise services.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique, stable error code surfaced in API responses.
type ErrorCode string

const (
	// Validation errors (3xxx) — map to spec's InvalidInput kind.
	ErrCodeInvalidInput     ErrorCode = "VAL_3001"
	ErrCodeMissingParameter ErrorCode = "VAL_3002"
	ErrCodeInvalidFormat    ErrorCode = "VAL_3003"
	ErrCodeOutOfRange       ErrorCode = "VAL_3004"

	// Authentication/authorization errors — map to spec's Unauthorized kind.
	ErrCodeUnauthorized ErrorCode = "AUTH_1001"

	// Resource errors (4xxx) — map to spec's NotFound kind.
	ErrCodeNotFound      ErrorCode = "RES_4001"
	ErrCodeAlreadyExists ErrorCode = "RES_4002"
	ErrCodeConflict      ErrorCode = "RES_4003"

	// Service errors (5xxx) — map to spec's TransientIO/Fatal kinds.
	ErrCodeInternal          ErrorCode = "SVC_5001"
	ErrCodeStorageError      ErrorCode = "SVC_5002"
	ErrCodeTransientIO       ErrorCode = "SVC_5501"
	ErrCodeTimeout           ErrorCode = "SVC_5502"
	ErrCodeRateLimitExceeded ErrorCode = "SVC_5503"
	ErrCodeFatal             ErrorCode = "SVC_5900"
	ErrCodeCancelled         ErrorCode = "SVC_5901"
)

// Kind is the coarse error taxonomy named in the error handling design:
// InvalidInput, NotFound, Unauthorized, TransientIO, Fatal, Cancelled.
type Kind string

const (
	KindInvalidInput Kind = "InvalidInput"
	KindNotFound     Kind = "NotFound"
	KindUnauthorized Kind = "Unauthorized"
	KindTransientIO  Kind = "TransientIO"
	KindFatal        Kind = "Fatal"
	KindCancelled    Kind = "Cancelled"
)

// ServiceError is a structured error carrying a stable code, a coarse kind,
// an HTTP status, and optional details for API responses.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Kind       Kind                   `json:"kind"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(code ErrorCode, kind Kind, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Kind: kind, Message: message, HTTPStatus: httpStatus}
}

func Wrap(code ErrorCode, kind Kind, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Kind: kind, Message: message, HTTPStatus: httpStatus, Err: err}
}

// InvalidInput — malformed request, bad SPL, bad time range, etc.

func InvalidInput(field, reason string) *ServiceError {
	return New(ErrCodeInvalidInput, KindInvalidInput, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *ServiceError {
	return New(ErrCodeMissingParameter, KindInvalidInput, "missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

func InvalidFormat(field, expected string) *ServiceError {
	return New(ErrCodeInvalidFormat, KindInvalidInput, "invalid format", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("expected", expected)
}

func OutOfRange(field string, minValue, maxValue interface{}) *ServiceError {
	return New(ErrCodeOutOfRange, KindInvalidInput, "value out of range", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("min", minValue).
		WithDetails("max", maxValue)
}

// Unauthorized — intake auth failures, missing/invalid source tokens.

func Unauthorized(message string) *ServiceError {
	return New(ErrCodeUnauthorized, KindUnauthorized, message, http.StatusUnauthorized)
}

// NotFound — resource doesn't exist (source, alarm, archive segment).

func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, KindNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func AlreadyExists(resource, id string) *ServiceError {
	return New(ErrCodeAlreadyExists, KindNotFound, "resource already exists", http.StatusConflict).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(ErrCodeConflict, KindNotFound, message, http.StatusConflict)
}

// TransientIO — retryable I/O failures: disk writes, index commits, DB calls.

func TransientIO(operation string, err error) *ServiceError {
	return Wrap(ErrCodeTransientIO, KindTransientIO, "transient I/O error", http.StatusServiceUnavailable, err).
		WithDetails("operation", operation)
}

func StorageError(operation string, err error) *ServiceError {
	return Wrap(ErrCodeStorageError, KindTransientIO, "storage operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

func Timeout(operation string) *ServiceError {
	return New(ErrCodeTimeout, KindTransientIO, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(ErrCodeRateLimitExceeded, KindTransientIO, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Fatal — unrecoverable, non-retryable internal errors.

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, KindFatal, message, http.StatusInternalServerError, err)
}

func Fatal(message string, err error) *ServiceError {
	return Wrap(ErrCodeFatal, KindFatal, message, http.StatusInternalServerError, err)
}

// Cancelled — caller-cancelled contexts (query cancellation, shutdown).

func Cancelled(operation string) *ServiceError {
	return New(ErrCodeCancelled, KindCancelled, "operation cancelled", 499).
		WithDetails("operation", operation)
}

// Helper functions

func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func GetKind(err error) Kind {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Kind
	}
	return KindFatal
}
