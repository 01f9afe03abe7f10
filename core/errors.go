package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// authenticationError indicates a bad, missing or expired credential.
// The connection/request is rejected before any state mutation.
type authenticationError struct {
	message string
}

func NewAuthenticationError(msg string) error {
	return &authenticationError{message: msg}
}

func (e *authenticationError) Error() string {
	return e.message
}

func IsAuthenticationError(err error) bool {
	_, ok := errors.Cause(err).(*authenticationError)
	return ok
}

// persistenceError indicates the store failed while a record had to be
// written. It is the only failure in the notification subsystem worth
// surfacing to business callers; silently dropping a record would break
// the persist-exactly-once guarantee.
type persistenceError struct {
	message string
	cause   error
}

func NewPersistenceError(msg string, cause error) error {
	return &persistenceError{message: msg, cause: cause}
}

func (e *persistenceError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *persistenceError) Unwrap() error { return e.cause }

func IsPersistenceError(err error) bool {
	_, ok := errors.Cause(err).(*persistenceError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s *shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
