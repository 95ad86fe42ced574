package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Trellis error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"   // 400
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND" // 404
	ErrEmbedding       ErrorCode = "EMBEDDING_FAILED"  // 502
	ErrStorage         ErrorCode = "STORAGE_FAILED"    // 500
	ErrInternal        ErrorCode = "INTERNAL"          // 500
)

// TrellisError represents a structured error with code, status, and details.
type TrellisError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *TrellisError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *TrellisError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TrellisError {
	return &TrellisError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewSessionNotFound creates a 404 error for a session with zero thoughts.
func NewSessionNotFound(sessionID string) *TrellisError {
	return &TrellisError{
		Code:    ErrSessionNotFound,
		Status:  404,
		Message: fmt.Sprintf("no thoughts recorded for session: %s", sessionID),
		Details: map[string]any{"session_id": sessionID},
	}
}

// NewEmbedding creates a 502 error for a failed or unusable embedding step.
func NewEmbedding(msg string, cause error) *TrellisError {
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &TrellisError{
		Code:    ErrEmbedding,
		Status:  502,
		Message: msg,
		cause:   cause,
	}
}

// NewStorage creates a 500 error for a backing-store read or write failure.
func NewStorage(op string, cause error) *TrellisError {
	msg := fmt.Sprintf("storage %s failed", op)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &TrellisError{
		Code:    ErrStorage,
		Status:  500,
		Message: msg,
		Details: map[string]any{"op": op},
		cause:   cause,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *TrellisError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TrellisError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is (or wraps) a TrellisError with the given code.
func Is(err error, code ErrorCode) bool {
	var tErr *TrellisError
	if stderrors.As(err, &tErr) {
		return tErr.Code == code
	}
	return false
}
