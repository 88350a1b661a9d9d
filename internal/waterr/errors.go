// Package waterr defines the closed set of error kinds the core raises.
package waterr

import "fmt"

// Kind classifies a failure so callers can branch without parsing strings.
type Kind string

const (
	NotFound            Kind = "NOT_FOUND"
	DuplicateCode       Kind = "DUPLICATE_CODE"
	InvariantViolation  Kind = "INVARIANT_VIOLATION"
	InputFormat         Kind = "INPUT_FORMAT"
	StorageBackendError Kind = "STORAGE_BACKEND_ERROR"
	QuotaExceeded       Kind = "QUOTA_EXCEEDED"
	Timeout             Kind = "TIMEOUT"
)

// Error is the typed error carried across package boundaries. It never
// encodes control flow through panics; every fallible operation returns one
// of these explicitly.
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

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if asErr, ok := err.(*Error); ok {
			e = asErr
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
