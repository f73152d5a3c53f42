// Package errors provides structured error types for xenium-to-qupath.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI, the HTTP server and the library
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Conversion errors name the invariant that was broken in the source store:
//   - SHAPE_MISMATCH: parallel arrays of one polygon set disagree on row count
//   - CORRUPT_POLYGON: a declared pair count exceeds the row capacity
//   - UNKNOWN_CELL: a cell index points outside the cell_id table
//   - EMPTY_POLYGON: a ring with zero points reached the transformer
//   - MISSING_DATASET: an expected named array is absent from the store
//
// The remaining codes cover input validation, lookups and infrastructure.
// Every conversion error is fatal: the run produces a complete collection or
// nothing at all.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeUnknownCell, "row %d: cell index %d out of range", i, idx)
//	if errors.Is(err, errors.ErrCodeUnknownCell) {
//	    // Handle a dangling cell reference
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeMissingDataset, origErr, "open %s", name)
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Source store errors
	ErrCodeShapeMismatch  Code = "SHAPE_MISMATCH"
	ErrCodeCorruptPolygon Code = "CORRUPT_POLYGON"
	ErrCodeUnknownCell    Code = "UNKNOWN_CELL"
	ErrCodeEmptyPolygon   Code = "EMPTY_POLYGON"
	ErrCodeMissingDataset Code = "MISSING_DATASET"

	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"
	ErrCodeInvalidPath   Code = "INVALID_PATH"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeTimeout Code = "TIMEOUT"

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
// The outermost *Error decides; a wrapped inner code does not match.
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

// IsConversion reports whether err carries one of the source store codes
// that abort a conversion.
func IsConversion(err error) bool {
	switch GetCode(err) {
	case ErrCodeShapeMismatch, ErrCodeCorruptPolygon, ErrCodeUnknownCell,
		ErrCodeEmptyPolygon, ErrCodeMissingDataset:
		return true
	}
	return false
}

// HTTPStatus maps an error code to the HTTP status the server replies with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidFormat, ErrCodeInvalidPath:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeFileNotFound:
		return http.StatusNotFound
	case ErrCodeUnsupported:
		return http.StatusNotImplemented
	case ErrCodeNetwork, ErrCodeTimeout:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
