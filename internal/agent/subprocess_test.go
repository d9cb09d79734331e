package agent

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubprocessExecutorSuccess(t *testing.T) {
	e := NewSubprocessExecutor()
	inv := Invocation{Plan: Plan{Kind: "subprocess", Config: map[string]any{
		"command": "echo",
		"args":    []any{"hello"},
	}}}

	result, err := e.Execute(context.Background(), inv)
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, result.Kind)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].(string), "hello")
}

func TestSubprocessExecutorNonZeroExitIsToolError(t *testing.T) {
	e := NewSubprocessExecutor()
	inv := Invocation{Plan: Plan{Kind: "subprocess", Config: map[string]any{
		"command": "sh",
		"args":    []any{"-c", "exit 1"},
	}}}

	result, err := e.Execute(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, ResultToolError, result.Kind)
}

func TestSubprocessExecutorSpawnFailureIsTransportError(t *testing.T) {
	original := execCommandContext
	execCommandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "/nonexistent/binary-that-does-not-exist")
	}
	defer func() { execCommandContext = original }()

	e := NewSubprocessExecutor()
	inv := Invocation{Plan: Plan{Kind: "subprocess", Config: map[string]any{"command": "whatever"}}}

	result, err := e.Execute(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, ResultTransportError, result.Kind)
}

func TestSubprocessExecutorMissingCommandIsConfigError(t *testing.T) {
	e := NewSubprocessExecutor()
	result, err := e.Execute(context.Background(), Invocation{Plan: Plan{Kind: "subprocess", Config: map[string]any{}}})
	require.NoError(t, err)
	assert.Equal(t, ResultTransportError, result.Kind)
	assert.Equal(t, TransportConfig, result.TransportKind)
}

func TestSubprocessExecutorRespectsDeadline(t *testing.T) {
	e := NewSubprocessExecutor()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	inv := Invocation{Plan: Plan{Kind: "subprocess", Config: map[string]any{
		"command": "sleep",
		"args":    []any{"5"},
	}}}

	result, err := e.Execute(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, ResultTransportError, result.Kind)
	assert.Equal(t, TransportDeadline, result.TransportKind)
}
