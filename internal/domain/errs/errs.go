// Package errs defines the structured error taxonomy shared across conduit
// components: a small set of conceptual kinds (not Go types) carried on a
// single error value, with functional options for the fields the runtime's
// structured log entries require.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the conceptual error kinds components and the supervisor
// classify failures into.
type Kind string

const (
	// KindConfig marks a validation failure surfaced only at startup/reload;
	// never retried.
	KindConfig Kind = "config"
	// KindFatalRuntime marks an unrecoverable local state; the owning
	// component must exit.
	KindFatalRuntime Kind = "fatal_runtime"
	// KindTransient marks a network/IO hiccup that callers should retry with
	// backoff.
	KindTransient Kind = "transient"
	// KindDeserialize marks a malformed event; the event is dropped Rejected.
	KindDeserialize Kind = "deserialize"
	// KindBackpressure marks a buffer-full condition; not inherently an
	// error, but classified for counters and logs.
	KindBackpressure Kind = "backpressure"
)

// Code is a short machine-readable identifier distinguishing errors of the
// same Kind, stable across releases (used as the `error_code` log field and
// metric attribute).
type Code string

const (
	CodeInvalid Code = "invalid"
	CodeUnavailable Code = "unavailable"
	CodeCorrupt Code = "corrupt"
	CodeExhausted Code = "exhausted"
	CodeRejected Code = "rejected"
	CodeTimeout Code = "timeout"
	CodeCancelled Code = "cancelled"
	CodeUnknown Code = "unknown"
)

// Error is the structured error value threaded through conduit. It carries
// the fields the documented contract requires for log entries and metric attributes:
// component, kind, code, stage, and an optional wrapped cause.
type Error struct {
	Component string
	Kind Kind
	Code Code
	Stage string
	Message string
	Cause error
}

// Option customizes an Error at construction time.
type Option func(*Error)

// WithMessage sets a human-readable message distinct from the error chain.
func WithMessage(msg string) Option {
	return func(e *Error) { e.Message = msg }
}

// WithCause wraps an underlying error, preserved for errors.Unwrap/Is/As.
func WithCause(cause error) Option {
	return func(e *Error) { e.Cause = cause }
}

// WithStage records which pipeline stage (source/transform/sink/buffer name)
// raised the error.
func WithStage(stage string) Option {
	return func(e *Error) { e.Stage = stage }
}

// WithKind overrides the default KindTransient classification.
func WithKind(kind Kind) Option {
	return func(e *Error) { e.Kind = kind }
}

// New builds a structured Error for component, classified by code, with the
// given options applied. Kind defaults to KindTransient unless overridden by
// WithKind.
func New(component string, code Code, opts ...Option) *Error {
	e := &Error{
		Component: component,
		Kind: KindTransient,
		Code: code,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config is a convenience constructor for KindConfig errors.
func Config(component string, opts ...Option) *Error {
	opts = append([]Option{WithKind(KindConfig)}, opts...)
	return New(component, CodeInvalid, opts...)
}

// FatalRuntime is a convenience constructor for KindFatalRuntime errors.
func FatalRuntime(component string, opts ...Option) *Error {
	opts = append([]Option{WithKind(KindFatalRuntime)}, opts...)
	return New(component, CodeUnavailable, opts...)
}

// Deserialize is a convenience constructor for KindDeserialize errors.
func Deserialize(component string, opts ...Option) *Error {
	opts = append([]Option{WithKind(KindDeserialize)}, opts...)
	return New(component, CodeRejected, opts...)
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s[%s/%s]: %s", e.Component, e.Kind, e.Stage, msg)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Component, e.Kind, msg)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind and Code,
// allowing callers to classify with errors.Is(err, errs.Config("")).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind && e.Code == other.Code
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
