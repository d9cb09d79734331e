package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuccessResultIsNotError(t *testing.T) {
	result := SuccessResult("hello")
	assert.False(t, result.IsError())
	assert.Equal(t, ResultSuccess, result.Kind)
}

func TestToolErrorResultIsError(t *testing.T) {
	result := ToolErrorResult("business failure")
	assert.True(t, result.IsError())
}

func TestTransportErrorResultIsNeverIsError(t *testing.T) {
	result := TransportErrorResult(TransportUnavailable, "down")
	assert.False(t, result.IsError(), "IsError is reserved for tool_error")
	assert.Empty(t, result.Content)
}

func TestExecutorFuncSatisfiesExecutor(t *testing.T) {
	var _ Executor = ExecutorFunc(nil)
}
