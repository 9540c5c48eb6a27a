package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Salon error code.
type ErrorCode string

const (
	ErrInvalidInput       ErrorCode = "INVALID_INPUT"       // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrPreconditionFailed ErrorCode = "PRECONDITION_FAILED" // 409
	ErrInternal           ErrorCode = "INTERNAL"            // 500
	ErrStorageIO          ErrorCode = "STORAGE_IO"          // 503, retryable for reads
)

// SalonError represents a structured error with code, status, and details.
type SalonError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *SalonError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidInput creates a 400 error for malformed or missing fields.
func NewInvalidInput(msg string) *SalonError {
	return &SalonError{
		Code:    ErrInvalidInput,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for an absent topic, capsule, version, or task.
func NewNotFound(kind, identifier string) *SalonError {
	return &SalonError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewPreconditionFailed creates a 409 error when the target is in the wrong state.
func NewPreconditionFailed(msg string, details map[string]any) *SalonError {
	return &SalonError{
		Code:    ErrPreconditionFailed,
		Status:  409,
		Message: msg,
		Details: details,
	}
}

// NewStorageIO wraps a store failure. Reads may retry it; writes must not.
func NewStorageIO(err error) *SalonError {
	msg := "storage failure"
	if err != nil {
		msg = err.Error()
	}
	return &SalonError{
		Code:    ErrStorageIO,
		Status:  503,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *SalonError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SalonError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error (or anything it wraps) is a SalonError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SalonError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}
