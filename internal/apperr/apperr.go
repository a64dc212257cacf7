// Package apperr defines the error taxonomy shared by the routing engine.
//
// Every error that crosses a component boundary carries a Kind so callers
// (HTTP handlers, MCP tools, the sweep job) can decide how to surface it
// without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindNotAuthorized          Kind = "not_authorized"
	KindClassificationDegraded Kind = "classification_degraded"
	KindQuestionClosed         Kind = "question_closed"
	KindStoreUnavailable       Kind = "store_unavailable"
	KindNotFound               Kind = "not_found"
)

// Sentinels usable with errors.Is.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrNotAuthorized          = &Error{Kind: KindNotAuthorized}
	ErrClassificationDegraded = &Error{Kind: KindClassificationDegraded}
	ErrQuestionClosed         = &Error{Kind: KindQuestionClosed}
	ErrStoreUnavailable       = &Error{Kind: KindStoreUnavailable}
	ErrNotFound               = &Error{Kind: KindNotFound}
)

// Error is a classified engine error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Msg != "" {
		msg = e.Msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so sentinels compare by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the caller may retry the operation.
func (e *Error) Retryable() bool {
	return e.Kind == KindStoreUnavailable
}

// Validation builds a KindValidation error.
func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotAuthorized builds a KindNotAuthorized error.
func NotAuthorized(op, format string, args ...any) error {
	return &Error{Kind: KindNotAuthorized, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// QuestionClosed builds a KindQuestionClosed error.
func QuestionClosed(op, questionID string) error {
	return &Error{Kind: KindQuestionClosed, Op: op, Msg: fmt.Sprintf("question %s no longer accepts writes", questionID)}
}

// NotFound builds a KindNotFound error.
func NotFound(op, what, id string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("%s %s not found", what, id)}
}

// ClassificationDegraded wraps a classification service failure.
func ClassificationDegraded(op string, err error) error {
	return &Error{Kind: KindClassificationDegraded, Op: op, Err: err}
}

// StoreUnavailable wraps a backing store failure. Errors that are already
// classified pass through untouched.
func StoreUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStoreUnavailable, Op: op, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsRetryable reports whether err is a retryable infrastructure error.
func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return false
}
