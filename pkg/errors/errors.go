// Package errors provides structured error types for the Dropstage pipeline.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across CLI, API, and the graph engine
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes map to the failure categories of the node graph:
//   - PORT_ARITY: wrong number of links on a port expecting exactly one
//   - CONFIGURATION: empty generator pool, unparseable configuration value
//   - VALUE_CONVERSION: non-numeric weight/height/resolution input
//   - RENDER_FATAL: missing camera/floor/mask file, aborts the whole run
//
// # Usage
//
//	err := errors.New(errors.ErrCodePortArity, "port %q requires exactly 1 link", name)
//	if errors.Is(err, errors.ErrCodePortArity) {
//	    // Handle arity error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeRenderFatal, origErr, "mask file %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Node port contract errors
	ErrCodePortArity       Code = "PORT_ARITY"
	ErrCodeValueConversion Code = "VALUE_CONVERSION"

	// Configuration errors
	ErrCodeConfiguration  Code = "CONFIGURATION"
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidChannel Code = "INVALID_CHANNEL"

	// Render pipeline errors
	ErrCodeRenderFatal Code = "RENDER_FATAL"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// AtNode wraps an error with the failing node's name and type, so a pipeline
// failure identifies exactly which node raised it. Structured errors keep
// their code; plain errors are wrapped as INTERNAL_ERROR.
func AtNode(err error, name, nodeType string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{
			Code:    e.Code,
			Message: fmt.Sprintf("node %q (%s): %s", name, nodeType, e.Message),
			Cause:   e.Cause,
		}
	}
	return &Error{
		Code:    ErrCodeInternal,
		Message: fmt.Sprintf("node %q (%s)", name, nodeType),
		Cause:   err,
	}
}
