package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a testsmith error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"       // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"             // 404
	ErrCollisionExhausted  ErrorCode = "COLLISION_EXHAUSTED"   // 409
	ErrUserCancelled       ErrorCode = "USER_CANCELLED"        // 499
	ErrNoDirectorySelected ErrorCode = "NO_DIRECTORY_SELECTED" // 499
	ErrCancelled           ErrorCode = "CANCELLED"             // 499
	ErrIOFailure           ErrorCode = "IO_FAILURE"            // 500
	ErrInternal            ErrorCode = "INTERNAL"              // 500
	ErrStream              ErrorCode = "STREAM_ERROR"          // 502
)

// StreamReason classifies a failed model invocation.
type StreamReason string

const (
	ReasonNotSupported   StreamReason = "not_supported"
	ReasonNoResponse     StreamReason = "no_response"
	ReasonInvalidRequest StreamReason = "invalid_request"
	ReasonOffTopic       StreamReason = "off_topic"
	ReasonUnknown        StreamReason = "unknown"
)

// SmithError represents a structured error with code, status, and details.
type SmithError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *SmithError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *SmithError) Unwrap() error {
	return e.Cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *SmithError {
	return &SmithError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a generation record cannot be found.
func NewNotFound(identifier string) *SmithError {
	return &SmithError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("generation not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing file.
func NewFileNotFound(path string) *SmithError {
	return &SmithError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewCollisionExhausted creates a 409 error when every suffixed variant of a
// test file name already exists.
func NewCollisionExhausted(dir, fileName string, attempts int) *SmithError {
	return &SmithError{
		Code:    ErrCollisionExhausted,
		Status:  409,
		Message: fmt.Sprintf("no free name for %s in %s after %d attempts", fileName, dir, attempts),
		Details: map[string]any{"dir": dir, "file_name": fileName, "attempts": attempts},
	}
}

// NewUserCancelled creates an error for a prompt the user dismissed.
func NewUserCancelled(what string) *SmithError {
	return &SmithError{
		Code:    ErrUserCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled by user", what),
		Details: map[string]any{"prompt": what},
	}
}

// NewNoDirectorySelected creates an error for a test directory picker that
// was dismissed or declined.
func NewNoDirectorySelected() *SmithError {
	return &SmithError{
		Code:    ErrNoDirectorySelected,
		Status:  499,
		Message: "no test directory selected",
	}
}

// NewCancelled creates an error for an operation stopped by context cancellation.
func NewCancelled(op string) *SmithError {
	return &SmithError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewIOFailure creates a 500 error for a filesystem failure other than
// pre-existence. The underlying message is kept since users act on it.
func NewIOFailure(op, path string, err error) *SmithError {
	msg := fmt.Sprintf("%s %s failed", op, path)
	if err != nil {
		msg = fmt.Sprintf("%s %s: %v", op, path, err)
	}
	return &SmithError{
		Code:    ErrIOFailure,
		Status:  500,
		Message: msg,
		Details: map[string]any{"op": op, "path": path},
		Cause:   err,
	}
}

// NewStreamError creates a 502 error for a failed or rejected model invocation.
func NewStreamError(reason StreamReason, err error) *SmithError {
	msg := "language model request failed"
	if err != nil {
		msg = err.Error()
	}
	return &SmithError{
		Code:    ErrStream,
		Status:  502,
		Message: msg,
		Details: map[string]any{"reason": string(reason)},
		Cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *SmithError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SmithError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Cause:   err,
	}
}

// Is checks if an error (or anything it wraps) is a SmithError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SmithError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// Reason returns the stream failure reason carried by err, or "" when err
// is not a stream error.
func Reason(err error) StreamReason {
	var sErr *SmithError
	if !stderrors.As(err, &sErr) || sErr.Code != ErrStream {
		return ""
	}
	if r, ok := sErr.Details["reason"].(string); ok {
		return StreamReason(r)
	}
	return ReasonUnknown
}

// IsSilent reports whether err represents the user abandoning an operation.
// Such errors end the operation without a user-visible message.
func IsSilent(err error) bool {
	return Is(err, ErrUserCancelled) || Is(err, ErrNoDirectorySelected)
}
