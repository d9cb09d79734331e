package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magictunnel/pkg/mcperrors"
)

func TestRegistryGetUnknownKindReturnsConfigError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nonexistent")
	require.Error(t, err)
	assert.Equal(t, mcperrors.Config, mcperrors.KindOf(err))
}

func TestRegistryKnownKindReflectsRegistrations(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.KnownKind("http"))

	r.Register("http", ExecutorFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		return SuccessResult("ok"), nil
	}), nil, nil)

	assert.True(t, r.KnownKind("http"))
	assert.False(t, r.KnownKind("grpc"))
}

func TestRegistryValidateConfigRunsRegisteredValidator(t *testing.T) {
	r := NewRegistry()
	validator := func(config map[string]any) error {
		if _, ok := config["url"]; !ok {
			return assertErr("missing url")
		}
		return nil
	}
	r.Register("http", ExecutorFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		return SuccessResult(), nil
	}), validator, nil)

	assert.NoError(t, r.ValidateConfig("http", map[string]any{"url": "https://example.com"}))
	assert.Error(t, r.ValidateConfig("http", map[string]any{}))
}

func TestRegistryExecuteRunsThroughRegisteredExecutor(t *testing.T) {
	r := NewRegistry()
	r.Register("http", ExecutorFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		return SuccessResult("hello"), nil
	}), nil, nil)

	result, err := r.Execute(context.Background(), Invocation{Plan: Plan{Kind: "http"}})
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, result.Kind)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
