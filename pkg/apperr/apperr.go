// Package apperr defines the error kinds shared by the services and the
// HTTP boundary. Callers classify errors with KindOf or errors.Is against
// the Err* sentinels.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindExternalService Kind = "external_service"
	KindPersistence     Kind = "persistence"
	KindInternal        Kind = "internal"
)

var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrExternalService = &Error{Kind: KindExternalService}
	ErrPersistence     = &Error{Kind: KindPersistence}
)

// Error carries a kind, the operation that failed and a message safe to
// show to an operator. Err is the underlying cause, if any.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict)
// works regardless of op and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

func Validation(op, message string) error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

func Conflict(op, message string) error {
	return &Error{Kind: KindConflict, Op: op, Message: message}
}

func NotFound(op, message string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

func External(op string, err error) error {
	return &Error{Kind: KindExternalService, Op: op, Message: "remote directory request failed", Err: err}
}

func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Message: "local store operation failed", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for anything unclassified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Message returns the operator-facing text for err: the message of the
// first *Error in the chain followed by its cause.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			return fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
		}
		return appErr.Message
	}
	return err.Error()
}
