// Package faults defines the error taxonomy shared by the trigger path, the dispatcher and the
// retry policy.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry purposes.
type Kind string

const (
	KindUnknown       Kind = ""
	KindNotFound      Kind = "NotFoundError"
	KindAuth          Kind = "AuthError"
	KindValidation    Kind = "ValidationError"
	KindTransient     Kind = "TransientError"
	KindNotExecutable Kind = "NotExecutableError"
)

var (
	// ErrInvalidArgument marks bad input coming from callers or configuration.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPermissionDenied marks a failed security check.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrServiceNotConnected is returned by token providers when the user never linked the service.
	ErrServiceNotConnected = errors.New("service not connected")
)

// Error carries a Kind together with the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func NotFound(op, message string, err error) *Error {
	return newError(KindNotFound, op, message, err)
}

func Auth(op, message string, err error) *Error {
	return newError(KindAuth, op, message, err)
}

func Validation(op, message string, err error) *Error {
	return newError(KindValidation, op, message, err)
}

func Transient(op, message string, err error) *Error {
	return newError(KindTransient, op, message, err)
}

func NotExecutable(op, message string) *Error {
	return newError(KindNotExecutable, op, message, nil)
}

// KindOf returns the first Kind found in the chain. ErrInvalidArgument maps to
// KindValidation and ErrPermissionDenied or ErrServiceNotConnected to KindAuth.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var fe *Error
	if errors.As(err, &fe) && fe.Kind != KindUnknown {
		return fe.Kind
	}

	switch {
	case errors.Is(err, ErrInvalidArgument):
		return KindValidation
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrServiceNotConnected):
		return KindAuth
	default:
		return KindUnknown
	}
}

// Name returns a printable exception kind for error payloads.
func Name(err error) string {
	if kind := KindOf(err); kind != KindUnknown {
		return string(kind)
	}

	return fmt.Sprintf("%T", err)
}
