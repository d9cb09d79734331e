package agent

import (
	"context"
	"math/rand"
	"time"

	"magictunnel/pkg/logging"
)

const policySubsystem = "AgentPolicy"

// RetryPolicy configures the cross-cutting retry behavior every executor
// gets wrapped with, mirroring the teacher's tool-handler wrapping in
// internal/aggregator/tool_factory.go (every provider call passes through
// one choke point for logging and error normalization).
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	// 1 disables retrying.
	MaxAttempts int
	// BaseDelay is the initial backoff; subsequent attempts double it.
	BaseDelay time.Duration
	// MaxDelay caps the backoff after doubling.
	MaxDelay time.Duration
	// Retriable reports whether a transport_error of the given kind
	// should be retried. Only ever consulted for transport_error results;
	// tool_error and success are never retried.
	Retriable func(TransportKind) bool
	// Timeout bounds a single attempt. Zero means no additional timeout
	// beyond the caller's context.
	Timeout time.Duration
}

// DefaultRetryPolicy returns the documented default for kind: idempotent
// transports (http, graphql, database, mcp-proxy) retry on
// upstream_unavailable/overloaded; subprocess, websocket, sse, grpc, and
// llm default to no retry since a retry semantically re-triggers side
// effects or re-opens a stateful stream.
func DefaultRetryPolicy(kind string) RetryPolicy {
	noRetry := RetryPolicy{
		MaxAttempts: 1,
		BaseDelay:   0,
		MaxDelay:    0,
		Retriable:   func(TransportKind) bool { return false },
	}

	idempotent := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Retriable: func(k TransportKind) bool {
			return k == TransportUnavailable || k == TransportOverloaded
		},
	}

	switch kind {
	case "http", "graphql", "database", "mcpproxy":
		return idempotent
	default:
		return noRetry
	}
}

// withPolicy wraps executor with the shared timeout/retry/normalization
// decorator. Every registered executor passes through this, the way every
// tool handler passes through createToolHandler in the aggregator this
// package's retry behavior is grounded on.
func withPolicy(executor Executor, policy RetryPolicy) Executor {
	return ExecutorFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		started := time.Now()

		attempts := policy.MaxAttempts
		if attempts < 1 {
			attempts = 1
		}
		delay := policy.BaseDelay

		var last Result
		var lastErr error

		for attempt := 1; attempt <= attempts; attempt++ {
			attemptCtx := ctx
			var cancel context.CancelFunc
			if policy.Timeout > 0 {
				attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
			}

			result, err := executor.Execute(attemptCtx, inv)
			if cancel != nil {
				cancel()
			}

			result.Duration = time.Since(started)
			last, lastErr = result, err

			if err != nil {
				return result, err
			}
			if result.Kind != ResultTransportError {
				return result, nil
			}
			if attempt == attempts || policy.Retriable == nil || !policy.Retriable(result.TransportKind) {
				return result, nil
			}
			if ctx.Err() != nil {
				return result, nil
			}

			logging.Debug(policySubsystem, "retrying %s after transport_error %q (attempt %d/%d)",
				inv.Plan.Kind, result.TransportKind, attempt, attempts)

			select {
			case <-time.After(jitter(delay)):
			case <-ctx.Done():
				return TransportErrorResult(TransportCancelled, ctx.Err()), nil
			}

			delay *= 2
			if policy.MaxDelay > 0 && delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}

		return last, lastErr
	})
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}
