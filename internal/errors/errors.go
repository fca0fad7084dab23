// Package errors provides structured error types for arcset.
//
// Every failure surfaced by the channel, the supervisor and the generator is an
// *ArcsetError carrying a category and a stable code, so callers can decide
// between "exit with usage", "fatal resource failure" and "stop publishing"
// with errors.Is against the predefined instances below.
package errors

import (
	goerrors "errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeUsage    ErrorType = "usage"
	ErrorTypeResource ErrorType = "resource"
	ErrorTypeState    ErrorType = "state"
	ErrorTypeInternal ErrorType = "internal"
)

// Error codes
const (
	CodeUsage             = "USAGE"
	CodeResourceCreation  = "RESOURCE_CREATION"
	CodeResourceExists    = "RESOURCE_EXISTS"
	CodeResourceExhausted = "RESOURCE_EXHAUSTED"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidLayout     = "INVALID_LAYOUT"
	CodeTerminated        = "TERMINATED"
	CodeTeardown          = "TEARDOWN"
	CodeNotOwner          = "NOT_OWNER"
	CodeClosed            = "CLOSED"
	CodeUnknown           = "UNKNOWN_ERROR"
)

// Process exit codes
const (
	ExitOK    = 0
	ExitFatal = 1
	ExitUsage = 2
)

// ArcsetError is the base error type for all arcset errors
type ArcsetError struct {
	Type       ErrorType
	Code       string
	Message    string
	Underlying error
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *ArcsetError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *ArcsetError) Unwrap() error {
	return e.Underlying
}

// Is checks if the error matches another error
func (e *ArcsetError) Is(target error) bool {
	if t, ok := target.(*ArcsetError); ok {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithDetails adds details to the error
func (e *ArcsetError) WithDetails(key string, value interface{}) *ArcsetError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// LogAttrs returns slog attributes for the error
func (e *ArcsetError) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("error_type", string(e.Type)),
		slog.String("error_code", e.Code),
		slog.String("error_message", e.Message),
	}
	if e.Underlying != nil {
		attrs = append(attrs, slog.String("underlying_error", e.Underlying.Error()))
	}
	for key, value := range e.Details {
		attrs = append(attrs, slog.Any("error_detail_"+key, value))
	}
	return attrs
}

// Common error constructors

// UsageError creates an error for malformed command-line input
func UsageError(message string, underlying error) *ArcsetError {
	return &ArcsetError{
		Type:       ErrorTypeUsage,
		Code:       CodeUsage,
		Message:    message,
		Underlying: underlying,
	}
}

// ResourceError creates an error for a shared memory or semaphore failure
func ResourceError(code, message string, underlying error) *ArcsetError {
	return &ArcsetError{
		Type:       ErrorTypeResource,
		Code:       code,
		Message:    message,
		Underlying: underlying,
	}
}

// StateError creates an error describing the channel's lifecycle state
func StateError(code, message string, underlying error) *ArcsetError {
	return &ArcsetError{
		Type:       ErrorTypeState,
		Code:       code,
		Message:    message,
		Underlying: underlying,
	}
}

// InternalError creates an internal error
func InternalError(code, message string, underlying error) *ArcsetError {
	return &ArcsetError{
		Type:       ErrorTypeInternal,
		Code:       code,
		Message:    message,
		Underlying: underlying,
	}
}

// Predefined error instances

var (
	ErrUsage             = UsageError("invalid arguments", nil)
	ErrResourceCreation  = ResourceError(CodeResourceCreation, "failed to create shared resource", nil)
	ErrResourceExists    = ResourceError(CodeResourceExists, "shared resource already exists", nil)
	ErrResourceExhausted = ResourceError(CodeResourceExhausted, "shared resource exhausted", nil)
	ErrNotFound          = ResourceError(CodeNotFound, "shared resource not found", nil)
	ErrInvalidLayout     = ResourceError(CodeInvalidLayout, "shared resource has an unexpected layout", nil)
	ErrTeardown          = ResourceError(CodeTeardown, "failed to release shared resource", nil)

	// ErrTerminated is returned by Publish once shutdown has begun. It is a
	// signal for the caller's loop to stop, not a failure.
	ErrTerminated = StateError(CodeTerminated, "channel is terminating", nil)

	ErrNotOwner = InternalError(CodeNotOwner, "only the creator may destroy the channel", nil)
	ErrClosed   = InternalError(CodeClosed, "channel handle is closed", nil)
)

// ClassifyError maps an error returned while creating, opening or mapping a
// shared resource onto an *ArcsetError. message describes the failed step.
func ClassifyError(err error, message string) *ArcsetError {
	if err == nil {
		return nil
	}

	var arcErr *ArcsetError
	if goerrors.As(err, &arcErr) {
		return arcErr
	}

	switch {
	case goerrors.Is(err, os.ErrExist):
		return ResourceError(CodeResourceExists, message, err)
	case goerrors.Is(err, os.ErrNotExist):
		return ResourceError(CodeNotFound, message, err)
	case isExhaustion(err):
		return ResourceError(CodeResourceExhausted, message, err)
	default:
		return ResourceError(CodeResourceCreation, message, err)
	}
}

// isExhaustion checks if the error reports a lack of memory or space
func isExhaustion(err error) bool {
	var errno syscall.Errno
	if goerrors.As(err, &errno) {
		switch errno {
		case syscall.ENOMEM, syscall.ENOSPC, syscall.EFBIG, syscall.EMFILE, syscall.ENFILE:
			return true
		}
	}
	return false
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var arcErr *ArcsetError
	if goerrors.As(err, &arcErr) {
		return arcErr.Type == errorType
	}
	return false
}

// IsCode checks if an error has a specific code
func IsCode(err error, code string) bool {
	var arcErr *ArcsetError
	if goerrors.As(err, &arcErr) {
		return arcErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) string {
	var arcErr *ArcsetError
	if goerrors.As(err, &arcErr) {
		return arcErr.Code
	}
	return CodeUnknown
}

// ExitCode returns the process exit status for err
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case IsType(err, ErrorTypeUsage):
		return ExitUsage
	default:
		return ExitFatal
	}
}
