package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithPolicyRetriesTransportErrorUpToMaxAttempts(t *testing.T) {
	attempts := 0
	executor := ExecutorFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		attempts++
		if attempts < 3 {
			return TransportErrorResult(TransportUnavailable, "down"), nil
		}
		return SuccessResult("ok"), nil
	})

	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retriable:   func(k TransportKind) bool { return k == TransportUnavailable },
	}

	result, err := withPolicy(executor, policy).Execute(context.Background(), Invocation{})
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, result.Kind)
	assert.Equal(t, 3, attempts)
}

func TestWithPolicyStopsAtMaxAttempts(t *testing.T) {
	attempts := 0
	executor := ExecutorFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		attempts++
		return TransportErrorResult(TransportUnavailable, "down"), nil
	})

	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Retriable:   func(k TransportKind) bool { return true },
	}

	result, err := withPolicy(executor, policy).Execute(context.Background(), Invocation{})
	require.NoError(t, err)
	assert.Equal(t, ResultTransportError, result.Kind)
	assert.Equal(t, 3, attempts)
}

func TestWithPolicyNeverRetriesToolError(t *testing.T) {
	attempts := 0
	executor := ExecutorFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		attempts++
		return ToolErrorResult("business failure"), nil
	})

	policy := RetryPolicy{MaxAttempts: 5, Retriable: func(TransportKind) bool { return true }}

	result, err := withPolicy(executor, policy).Execute(context.Background(), Invocation{})
	require.NoError(t, err)
	assert.Equal(t, ResultToolError, result.Kind)
	assert.Equal(t, 1, attempts)
}

func TestWithPolicyHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executor := ExecutorFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		return TransportErrorResult(TransportUnavailable, "down"), nil
	})

	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Retriable:   func(TransportKind) bool { return true },
	}

	result, err := withPolicy(executor, policy).Execute(ctx, Invocation{})
	require.NoError(t, err)
	assert.Equal(t, ResultTransportError, result.Kind)
}

func TestDefaultRetryPolicyIsIdempotentForHTTP(t *testing.T) {
	policy := DefaultRetryPolicy("http")
	assert.Greater(t, policy.MaxAttempts, 1)
	assert.True(t, policy.Retriable(TransportUnavailable))
}

func TestDefaultRetryPolicyDisablesRetryForSubprocess(t *testing.T) {
	policy := DefaultRetryPolicy("subprocess")
	assert.Equal(t, 1, policy.MaxAttempts)
}
