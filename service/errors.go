package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a service matches exactly one of them with errors.Is.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotAuthorized  = errors.New("not authorized")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrPersistence    = errors.New("persistence error")
	ErrPartialFailure = errors.New("partial failure")
)

// Error carries a human readable message together with its kind and optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidInput(format string, args ...interface{}) error {
	return &Error{Kind: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func notAuthorized(format string, args ...interface{}) error {
	return &Error{Kind: ErrNotAuthorized, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...interface{}) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// persistence wraps a storage error. Service errors pass through untouched.
func persistence(err error, format string, args ...interface{}) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	return &Error{Kind: ErrPersistence, Message: fmt.Sprintf(format, args...), Err: err}
}
