// Package agent implements the executor layer: rendering a tool's routing
// block into an executable Plan and running it against the agent kind's
// executor to produce a normalized Result.
package agent

import (
	"context"
	"time"
)

// Plan is the fully rendered, argument-substituted form of a routing
// block. It holds no reference back to the originating Tool or Routing,
// so it can be logged, replayed, or sandboxed independently of the
// catalog that produced it.
type Plan struct {
	Kind   string
	Config map[string]any
}

// Invocation carries a Plan plus the per-call metadata an executor needs:
// the deadline context, a correlation id for logging, and the raw
// arguments (kept alongside Config for executors that need the original
// typed values rather than the rendered strings).
type Invocation struct {
	Plan      Plan
	Arguments map[string]any
	RequestID string
}

// ResultKind is the closed tag on an agent Result.
type ResultKind string

const (
	// ResultSuccess: the tool ran and returned successfully.
	ResultSuccess ResultKind = "success"
	// ResultToolError: the tool ran and reported a business-level failure
	// the caller should see as part of a successful protocol exchange.
	ResultToolError ResultKind = "tool_error"
	// ResultTransportError: the tool could not be run, or the transport
	// failed independently of the tool's own logic. The gateway renders it
	// as is_error=true text content naming the transport kind; it is not
	// sent as a JSON-RPC error response.
	ResultTransportError ResultKind = "transport_error"
)

// Result is the normalized outcome of executing a Plan, regardless of
// which agent kind produced it.
type Result struct {
	Kind ResultKind

	// Content holds success/tool_error payload blocks (strings are
	// rendered as text content; anything else is JSON-marshaled by the
	// MCP surface). Empty for transport_error.
	Content []any

	// TransportKind classifies a transport_error using the shared error
	// taxonomy. Zero value for success/tool_error.
	TransportKind TransportKind

	// Detail carries structured context for a transport_error (the
	// underlying error, a retry-after hint, etc).
	Detail any

	// Duration is the wall-clock time the executor spent on this
	// invocation, including retries.
	Duration time.Duration
}

// IsError reports whether this result is a tool_error, whose own content
// is rendered with is_error=true. A transport_error carries no content of
// its own and reports false; the gateway renders it as a separate
// is_error=true text message.
func (r Result) IsError() bool { return r.Kind == ResultToolError }

// TransportKind names the reason a transport_error occurred. These are
// the transport-facing subset of mcperrors.Kind: an executor emits one
// of these and the gateway maps it onto the shared taxonomy.
type TransportKind string

const (
	TransportConfig      TransportKind = "config"
	TransportUnavailable TransportKind = "upstream_unavailable"
	TransportReconnect   TransportKind = "reconnect"
	TransportDeadline    TransportKind = "deadline"
	TransportCancelled   TransportKind = "cancelled"
	TransportOverloaded  TransportKind = "overloaded"
	TransportInternal    TransportKind = "internal"
)

// SuccessResult builds a success Result from a list of content blocks.
func SuccessResult(content ...any) Result {
	return Result{Kind: ResultSuccess, Content: content}
}

// ToolErrorResult builds a tool_error Result: the tool ran, it just
// reported failure.
func ToolErrorResult(content ...any) Result {
	return Result{Kind: ResultToolError, Content: content}
}

// TransportErrorResult builds a transport_error Result: the tool could
// not be run at all.
func TransportErrorResult(kind TransportKind, detail any) Result {
	return Result{Kind: ResultTransportError, TransportKind: kind, Detail: detail}
}

// Executor runs a rendered Plan and produces a Result. Implementations
// must respect ctx's deadline/cancellation and translate transport-level
// failures into TransportErrorResult rather than returning a Go error for
// anything the caller should see as part of normal operation. A non-nil
// error return is reserved for executor misconfiguration that withPolicy
// should treat as non-retriable.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, inv Invocation) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, inv Invocation) (Result, error) {
	return f(ctx, inv)
}
