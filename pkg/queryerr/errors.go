// Package queryerr defines the structured error type shared by every
// query-core component. Errors are categorized by kind (spec-level
// error category), never by exception class, so the router can inspect
// a failure and decide how to degrade without type-switching on Go
// error types.
package queryerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories the query core recognizes.
type Kind string

const (
	KindTimeout              Kind = "timeout"
	KindRetrievalUnavailable Kind = "retrieval_unavailable"
	KindLLMUnavailable       Kind = "llm_unavailable"
	KindCacheUnavailable     Kind = "cache_unavailable"
	KindPathFailed           Kind = "path_failed"
	KindBothPathsFailed      Kind = "both_paths_failed"
	KindRateLimited          Kind = "rate_limited"
	KindInvalidInput         Kind = "invalid_input"
)

// Error is a structured error carrying a Kind, a message safe for
// logs, optional structured details, and an optional wrapped cause.
// Details and Cause must never be surfaced to end users directly;
// only Message (kept generic) may reach user-facing content.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/errors.As against the wrapped Cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails attaches a structured detail key/value and returns e for chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause attaches an underlying cause and returns e for chaining.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and ok=true.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
