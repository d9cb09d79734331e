package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magictunnel/internal/agent/llm"
	"magictunnel/internal/catalog"
	"magictunnel/internal/embedding"
)

func catalogWith(tools ...catalog.Tool) *catalog.Catalog {
	c, err := catalog.Merge([]catalog.Source{{ID: "a.yaml", Tools: tools}}, catalog.PolicyError)
	if err != nil {
		panic(err)
	}
	return c
}

func TestDiscoverExactNameMatchMeetsThreshold(t *testing.T) {
	tool := catalog.Tool{
		Name: "ping_host", Description: "pings a host to check connectivity",
		Routing:     catalog.Routing{Kind: "subprocess"},
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{"host": map[string]any{"type": "string"}}},
	}
	cat := catalogWith(tool)
	idx := embedding.NewMemoryIndex()
	idx.IndexLexical(tool.Name, tool.IndexedText())

	p := New(func() *catalog.Catalog { return cat }, idx, nil, nil, nil, DefaultConfig())
	result, err := p.Discover(context.Background(), "ping_host", nil)
	require.NoError(t, err)
	require.NotNil(t, result.Selected)
	assert.Equal(t, "ping_host", result.Selected.ToolName)
	assert.GreaterOrEqual(t, result.Selected.Score, DefaultConfidenceThreshold)
}

func TestDiscoverEmptyCatalogReturnsNoSelection(t *testing.T) {
	cat := catalogWith()
	idx := embedding.NewMemoryIndex()
	p := New(func() *catalog.Catalog { return cat }, idx, nil, nil, nil, DefaultConfig())

	result, err := p.Discover(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Nil(t, result.Selected)
	assert.Empty(t, result.Candidates)
}

func TestDiscoverBelowThresholdReturnsCandidatesOnly(t *testing.T) {
	tool := catalog.Tool{Name: "unrelated_tool", Description: "does something else entirely", Routing: catalog.Routing{Kind: "http"}}
	cat := catalogWith(tool)
	idx := embedding.NewMemoryIndex()
	idx.IndexLexical(tool.Name, tool.IndexedText())

	p := New(func() *catalog.Catalog { return cat }, idx, nil, nil, nil, DefaultConfig())
	result, err := p.Discover(context.Background(), "completely different natural language request xyz", nil)
	require.NoError(t, err)
	assert.Nil(t, result.Selected)
	assert.Len(t, result.Candidates, 1)
}

type fakeLLM struct {
	responses []string
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	r := f.responses[f.calls]
	f.calls++
	return llm.Response{Content: r}, nil
}

func TestSynthesizeRetriesOnceAfterValidationFailure(t *testing.T) {
	tool := catalog.Tool{
		Name: "ping_host", Description: "pings a host",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"host": map[string]any{"type": "string"}},
			"required":   []any{"host"},
		},
	}
	fake := &fakeLLM{responses: []string{`{"wrong_field": "x"}`, `{"host": "google.com"}`}}
	p := New(func() *catalog.Catalog { return catalogWith(tool) }, embedding.NewMemoryIndex(), nil, fake, nil, DefaultConfig())

	args, err := p.Synthesize(context.Background(), tool, "ping google.com")
	require.NoError(t, err)
	assert.Equal(t, "google.com", args["host"])
	assert.Equal(t, 2, fake.calls)
}

func TestSynthesizeFailsAfterTwoBadAttempts(t *testing.T) {
	tool := catalog.Tool{
		Name: "ping_host",
		InputSchema: map[string]any{
			"type": "object", "properties": map[string]any{"host": map[string]any{"type": "string"}},
			"required": []any{"host"},
		},
	}
	fake := &fakeLLM{responses: []string{`{}`, `{}`}}
	p := New(func() *catalog.Catalog { return catalogWith(tool) }, embedding.NewMemoryIndex(), nil, fake, nil, DefaultConfig())

	_, err := p.Synthesize(context.Background(), tool, "ping something")
	require.Error(t, err)
	assert.Equal(t, 2, fake.calls)
}
