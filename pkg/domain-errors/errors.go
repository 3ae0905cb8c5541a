// Package domainerrors carries the coded error taxonomy shared by services and
// transports. Services return these; transports map Code to a status.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers. It is stable and safe to expose.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal_error"
)

// Error is a coded error with an optional list of field-level details.
type Error struct {
	Code    Code
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation builds a validation error carrying one message per failing field.
func Validation(message string, details ...string) *Error {
	return &Error{Code: CodeValidation, Message: message, Details: details}
}

// HasCode reports whether the outermost coded error in the chain has the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost coded error in the chain,
// or CodeInternal when the chain has none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// DetailsOf returns field-level details of the outermost coded error, if any.
func DetailsOf(err error) []string {
	var de *Error
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}
