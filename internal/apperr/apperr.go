// Package apperr carries the error taxonomy shared by services, jobs and
// handlers. Callers branch on the Kind rather than on error identity.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindUnauthorized     Kind = "unauthorized"
	KindConflict         Kind = "conflict"
	KindValidation       Kind = "validation"
	KindExternalCall     Kind = "external_call"
	KindOperatorRequired Kind = "operator_required"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error         { return New(KindNotFound, message) }
func Unauthorized(message string) *Error     { return New(KindUnauthorized, message) }
func Conflict(message string) *Error         { return New(KindConflict, message) }
func Validation(message string) *Error       { return New(KindValidation, message) }
func OperatorRequired(message string) *Error { return New(KindOperatorRequired, message) }

func ExternalCall(message string, err error) *Error {
	return Wrap(KindExternalCall, message, err)
}

// KindOf returns the kind of err, or an empty kind for errors that did not
// originate from this package.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
