// Package apperr defines the semantic error kinds surfaced to HTTP clients.
//
// A kind is a sentinel; an *Error pairs a kind with a user-facing message and
// an optional cause. errors.Is matches both the kind and the cause chain, so
// callers can branch on the category while the cause stays available to logs.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is a category of failure.
type Kind interface {
	error
	isKind()
}

type kind struct{ s string }

func (k kind) Error() string { return k.s }
func (k kind) isKind()       {}

var (
	// ErrValidation marks missing or non-YouTube input.
	ErrValidation Kind = kind{"VALIDATION"}
	// ErrMalformedRequest marks a body that is not valid JSON.
	ErrMalformedRequest Kind = kind{"MALFORMED_REQUEST"}
	// ErrDependencyMissing marks an absent external executable.
	ErrDependencyMissing Kind = kind{"DEPENDENCY_MISSING"}
	// ErrConversionFailed marks a failed or unverifiable yt-dlp run.
	ErrConversionFailed Kind = kind{"CONVERSION_FAILED"}
	// ErrNotFound marks an unknown route or absent download.
	ErrNotFound Kind = kind{"NOT_FOUND"}
	// ErrInternal is everything else.
	ErrInternal Kind = kind{"INTERNAL"}
)

// Error is a kinded error with a user-facing message.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New returns an error of kind k carrying msg.
func New(k Kind, msg string) *Error {
	return &Error{kind: k, msg: msg}
}

// Wrap returns an error of kind k carrying msg and cause.
func Wrap(k Kind, cause error, msg string) *Error {
	return &Error{kind: k, msg: msg, err: cause}
}

// Error returns the user-facing message. The cause is for logs only and may
// contain host paths.
func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.msg != "":
		return e.msg
	case e.err != nil:
		return e.err.Error()
	default:
		return e.kind.Error()
	}
}

func (e *Error) Unwrap() error { return e.err }

// Is matches the kind sentinel or anything in the cause chain.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if e.kind != nil && e.kind == target {
		return true
	}
	return e.err != nil && errors.Is(e.err, target)
}

// Kind returns the kind of e.
func (e *Error) Kind() Kind { return e.kind }

// Cause returns the wrapped cause, possibly nil.
func (e *Error) Cause() error { return e.err }

// KindOf returns the kind of the first *Error in err's chain, or ErrInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e.kind != nil {
		return e.kind
	}
	return ErrInternal
}

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrValidation, ErrMalformedRequest:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-facing text for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "internal server error"
}
