// Package apierrors defines the error-kind taxonomy of spec.md §7. Errors
// are classified by Kind (and, for a few kinds, a Sub-kind) rather than by
// Go type, so callers can branch on errors.As(*Error) and switch on Kind.
package apierrors

import (
	"errors"
	"fmt"
)

// Kind is the top-level error classification from spec.md §7.
type Kind string

// Error kinds.
const (
	KindAuthentication  Kind = "authentication"
	KindPermission      Kind = "permission"
	KindNotFound        Kind = "resource-not-found"
	KindExists          Kind = "resource-exists"
	KindValidation      Kind = "validation"
	KindRateLimit       Kind = "rate-limit"
	KindExternalService Kind = "external-service"
	KindAudioProcessing Kind = "audio-processing"
	KindWebSocket       Kind = "websocket"
	KindConfiguration   Kind = "configuration"
	KindInternal        Kind = "internal"
)

// Sub-kinds, valid only for specific Kinds (documented per constant).

// external-service sub-kinds.
const (
	SubSTT         = "stt"
	SubLLM         = "llm"
	SubTTS         = "tts"
	SubDiarization = "diarization"
)

// audio-processing sub-kinds.
const (
	SubConversion = "conversion"
	SubTooShort   = "too-short"
)

// websocket sub-kinds.
const (
	SubConnectionClosed = "connection-closed"
	SubSend             = "send"
)

// configuration sub-kinds.
const (
	SubMissing = "missing"
	SubInvalid = "invalid"
)

// Error is the concrete error value carried through the core.
type Error struct {
	Kind    Kind
	Sub     string
	Message string
	Cause   error
}

// New constructs an *Error with no sub-kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithSub returns a copy of e with Sub set.
func (e *Error) WithSub(sub string) *Error {
	c := *e
	c.Sub = sub
	return &c
}

// WithCause returns a copy of e with Cause set.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Sub != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Sub, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind and Sub, or
// whether the wrapped Cause matches target.
func (e *Error) Is(target error) bool {
	if e.Cause != nil && errors.Is(e.Cause, target) {
		return true
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Sub == t.Sub
}

// Common sentinel instances for comparisons that don't need a custom
// message (errors.Is(err, apierrors.ErrNotFound)-style checks).
var (
	ErrNotFound        = New(KindNotFound, "resource not found")
	ErrInvalidToken    = New(KindAuthentication, "invalid token")
	ErrRateLimited     = New(KindRateLimit, "rate limited")
	ErrConnectionLost  = (&Error{Kind: KindWebSocket, Sub: SubConnectionClosed, Message: "connection closed"})
)
