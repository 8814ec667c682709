// Package apierr defines the broker's tagged error taxonomy and its
// mapping onto HTTP status codes and JSON error codes, which the HTTP
// surface reports in its {"detail": ...} error body.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags an Error with the category that decides its HTTP status.
type Kind string

const (
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindPathEscape         Kind = "PATH_ESCAPE"
	KindNotFound           Kind = "NOT_FOUND"
	KindSessionBusy        Kind = "SESSION_BUSY"
	KindQuotaExceeded      Kind = "QUOTA_EXCEEDED"
	KindOverloaded         Kind = "OVERLOADED"
	KindStorageUnavailable Kind = "STORAGE_UNAVAILABLE"
	KindStorageBroken      Kind = "STORAGE_BROKEN"
	KindAgentFailure       Kind = "AGENT_FAILURE"
	KindFatal              Kind = "FATAL"
)

// statusByKind maps each Kind onto the HTTP status the surface returns.
var statusByKind = map[Kind]int{
	KindInvalidInput:       http.StatusBadRequest,
	KindPathEscape:         http.StatusBadRequest,
	KindNotFound:           http.StatusNotFound,
	KindSessionBusy:        http.StatusConflict,
	KindQuotaExceeded:      http.StatusTooManyRequests,
	KindOverloaded:         http.StatusTooManyRequests,
	KindStorageUnavailable: http.StatusServiceUnavailable,
	KindStorageBroken:      http.StatusInternalServerError,
	KindAgentFailure:       http.StatusInternalServerError,
	KindFatal:              http.StatusInternalServerError,
}

// Error is the taxonomy's concrete type. Every boundary between the
// Session Manager, Metadata Store, and Agent Client that can fail in a
// way the HTTP surface must distinguish returns one of these.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code for this error's Kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds a tagged Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a tagged Error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches structured detail fields and returns the receiver,
// for chaining at the call site: apierr.New(...).WithDetails(...).
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// As extracts an *Error from err, following the error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Status returns the HTTP status for any error: apierr.Status() for a
// tagged Error, 500 for anything else. Handlers call this rather than
// inspecting Kind directly so an un-tagged error never leaks a 200.
func Status(err error) int {
	if e, ok := As(err); ok {
		return e.Status()
	}
	return http.StatusInternalServerError
}

// Code returns the JSON error code string for any error.
func Code(err error) string {
	if e, ok := As(err); ok {
		return string(e.Kind)
	}
	return string(KindFatal)
}

// Message returns the user-facing message for any error: a tagged
// Error's own Message (never its wrapped cause), or a generic fallback
// for anything untagged.
func Message(err error) string {
	if e, ok := As(err); ok {
		return e.Message
	}
	return "internal error"
}
