package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToolRejectsUnknownKind(t *testing.T) {
	tool := Tool{Name: "foo", Routing: Routing{Kind: "teleport"}}
	known := func(kind string) bool { return kind == "http" || kind == "subprocess" }

	err := ValidateTool(tool, known)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent kind")
}

func TestValidateToolAcceptsValidSchema(t *testing.T) {
	tool := Tool{
		Name:    "ping_host",
		Routing: Routing{Kind: "subprocess"},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"host": map[string]any{"type": "string"},
			},
			"required": []any{"host"},
		},
	}
	assert.NoError(t, ValidateTool(tool, nil))
}

func TestValidateToolRejectsMalformedSchema(t *testing.T) {
	tool := Tool{
		Name:    "broken",
		Routing: Routing{Kind: "subprocess"},
		InputSchema: map[string]any{
			"type": "not-a-real-type",
			"properties": map[string]any{
				"host": map[string]any{"type": 12345},
			},
		},
	}
	assert.Error(t, ValidateTool(tool, nil))
}

func TestValidateArgumentsAgainstSchema(t *testing.T) {
	tool := Tool{
		Name: "ping_host",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"host": map[string]any{"type": "string"},
			},
			"required": []any{"host"},
		},
	}

	assert.NoError(t, ValidateArguments(tool, map[string]any{"host": "google.com"}))
	assert.Error(t, ValidateArguments(tool, map[string]any{}))
}
