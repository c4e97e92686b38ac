// Package domainerrors defines the error taxonomy shared by services and the
// HTTP layer. Services return *Error values; transports translate the Code
// into a status and a stable machine-readable string.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeNotFound             Code = "not_found"
	CodeUnauthorized         Code = "unauthorized"
	CodeForbidden            Code = "forbidden"
	CodeConflict             Code = "conflict"
	CodeDefinitionInactive   Code = "definition_inactive"
	CodeInvalidReorderSet    Code = "invalid_reorder_set"
	CodeReferentialIntegrity Code = "referential_integrity"
	CodeValidation           Code = "validation_error"
	CodeBadRequest           Code = "bad_request"
	CodeInvalidInput         Code = "invalid_input"
	CodeInvariantViolation   Code = "invariant_violation"
	CodeTimeout              Code = "timeout"
	CodeInternal             Code = "internal_error"
)

// Error is a typed domain error. Entity and EntityID identify the record the
// failure is about so callers can render a precise message upstream.
type Error struct {
	Code     Code
	Message  string
	Entity   string
	EntityID string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Entity != "" {
		if e.EntityID != "" {
			msg = fmt.Sprintf("%s (%s %s)", msg, e.Entity, e.EntityID)
		} else {
			msg = fmt.Sprintf("%s (%s)", msg, e.Entity)
		}
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two domain errors by code and message so tests can compare
// against a freshly constructed value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// ForEntity returns a copy of the error annotated with the entity it concerns.
func (e *Error) ForEntity(kind string, id any) *Error {
	out := *e
	out.Entity = kind
	if id != nil {
		out.EntityID = fmt.Sprint(id)
	}
	return &out
}

// New builds a domain error without a cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap builds a domain error around a cause.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any domain error in err's chain has the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost domain error, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// As extracts the outermost domain error from err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}
