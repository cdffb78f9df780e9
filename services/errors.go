package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service error so callers can branch without matching
// on message text.
type Kind int

const (
	KindFatal Kind = iota
	KindNotFound
	KindAttemptLimitExceeded
	KindForbidden
	KindValidation
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAttemptLimitExceeded:
		return "attempt_limit_exceeded"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "fatal"
	}
}

// Error is a kind-tagged service error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is.
var (
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrAttemptLimitExceeded = &Error{Kind: KindAttemptLimitExceeded}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrValidation           = &Error{Kind: KindValidation}
	ErrConflict             = &Error{Kind: KindConflict}
)

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func fatal(msg string, err error) error {
	return &Error{Kind: KindFatal, Message: msg, Err: err}
}

// KindOf reports the kind of err. Errors not produced by this package are
// storage or system faults and report KindFatal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}
