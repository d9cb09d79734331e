// Package mcperrors defines MagicTunnel's stable, caller-facing error
// taxonomy (see SPEC_FULL.md §7). Every subsystem — catalog loading,
// template substitution, agent execution, federation, discovery — returns
// through this small set of Kinds. The MCP surface renders such an error as
// is_error=true tool content whose text carries the Kind; it does not map
// Kinds onto JSON-RPC error codes.
package mcperrors

import (
	"errors"
	"fmt"
)

// Kind is a stable, closed set of error categories surfaced to callers.
type Kind string

const (
	// Config covers manifest or routing misconfiguration.
	Config Kind = "config"
	// Validation covers caller arguments failing input_schema.
	Validation Kind = "validation"
	// NotFound covers unknown tool names or unknown external sessions.
	NotFound Kind = "not_found"
	// Unauthorized covers authentication/authorization failures at a boundary.
	Unauthorized Kind = "unauthorized"
	// UpstreamUnavailable covers a refused or unreachable external service; retriable.
	UpstreamUnavailable Kind = "upstream_unavailable"
	// UpstreamError covers a typed failure returned by an external service; not retriable.
	UpstreamError Kind = "upstream_error"
	// Deadline covers a request budget that was exhausted.
	Deadline Kind = "deadline"
	// Cancelled covers explicit caller cancellation.
	Cancelled Kind = "cancelled"
	// Overloaded covers an admission or concurrency limit being hit.
	Overloaded Kind = "overloaded"
	// Internal covers invariant violations; logged with full context, surfaced generically.
	Internal Kind = "internal"
)

// Error is the concrete error type carrying a Kind plus structured detail.
// It mirrors the shape of the teacher's ConfigurationError: a stable
// category, a human message, an optional wrapped cause, and a free-form
// Detail payload for structured contexts (e.g. which file, which field).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Detail  any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, mcperrors.New(kind, "")) to match on Kind alone.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail attaches a structured detail payload and returns e for chaining.
func (e *Error) WithDetail(detail any) *Error {
	e.Detail = detail
	return e
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to Internal for unrecognized errors so callers never have to special-case
// "unknown" kinds.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Retriable reports whether an error of this Kind is safe to retry
// automatically at the executor level (see SPEC_FULL.md §7 Recovery).
func (k Kind) Retriable() bool {
	switch k {
	case UpstreamUnavailable, Overloaded:
		return true
	default:
		return false
	}
}
