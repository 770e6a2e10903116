// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     apperror
// Description: Coded errors and their HTTP status mapping
// License:     MIT
// ============================================================================

// Package apperror provides coded errors shared by the TTS and STT processors
// and mapped onto HTTP status codes by the API server.
package apperror

import (
	"errors"
	"fmt"
)

// Code classifies an error
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInternal           Code = "INTERNAL"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeTimeout            Code = "TIMEOUT"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeExternalService    Code = "EXTERNAL_SERVICE_ERROR"
	CodeConfig             Code = "CONFIG_ERROR"
)

// String returns the string representation of the code
func (c Code) String() string {
	return string(c)
}

// HTTPStatus returns the HTTP status code for this error code
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidInput:
		return 400
	case CodeNotFound:
		return 404
	case CodeTimeout:
		return 504
	case CodeServiceUnavailable:
		return 503
	case CodeExternalService:
		return 502
	default:
		return 500
	}
}

// Error is an error with a code and the operation that produced it
type Error struct {
	Code    Code
	Op      string
	Message string
	Err     error
}

// New creates a new coded error
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Newf creates a new coded error with a formatted message
func Newf(code Code, op, format string, args ...interface{}) *Error {
	return New(code, op, fmt.Sprintf(format, args...))
}

// Wrap wraps err with a code and message. Returns nil if err is nil.
func Wrap(err error, code Code, op, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// GetCode returns the code of the first coded error in the chain
func GetCode(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given code
func HasCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// HTTPStatus returns the HTTP status for err, 500 for uncoded errors
func HTTPStatus(err error) int {
	return GetCode(err).HTTPStatus()
}
