package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magictunnel/internal/catalog"
)

func oneTool(name, desc string) *catalog.Catalog {
	c, err := catalog.Merge([]catalog.Source{{
		ID: "a.yaml",
		Tools: []catalog.Tool{{
			Name: name, Description: desc,
			Routing: catalog.Routing{Kind: "http"},
		}},
	}}, catalog.PolicyError)
	if err != nil {
		panic(err)
	}
	return c
}

func TestIndexerMarksNewToolsPending(t *testing.T) {
	ix := NewIndexer(NewMemoryIndex(), NoopProvider{DimN: 8})
	cat := oneTool("ping_host", "pings a host")

	require.NoError(t, ix.Reload(context.Background(), cat))
	assert.True(t, ix.Pending("ping_host"))
}

func TestIndexerClearsPendingAfterBackfill(t *testing.T) {
	index := NewMemoryIndex()
	provider := stubProvider{vec: []float32{1, 0, 0}}
	ix := NewIndexer(index, provider)
	cat := oneTool("ping_host", "pings a host")

	require.NoError(t, ix.Reload(context.Background(), cat))
	require.True(t, ix.Pending("ping_host"))

	ix.BackfillOnce(context.Background(), cat)
	assert.False(t, ix.Pending("ping_host"))

	rec, ok, err := index.Get(context.Background(), "ping_host")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, catalog.Fingerprint(func() string {
		tool, _ := cat.Get("ping_host")
		return tool.IndexedText()
	}()), rec.Fingerprint)
}

func TestIndexerPurgesRemovedTools(t *testing.T) {
	index := NewMemoryIndex()
	provider := stubProvider{vec: []float32{1, 0, 0}}
	ix := NewIndexer(index, provider)

	cat := oneTool("ping_host", "pings a host")
	require.NoError(t, ix.Reload(context.Background(), cat))
	ix.BackfillOnce(context.Background(), cat)

	empty, err := catalog.Merge(nil, catalog.PolicyError)
	require.NoError(t, err)
	require.NoError(t, ix.Reload(context.Background(), empty))

	_, ok, err := index.Get(context.Background(), "ping_host")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexerSkipsReembedWhenFingerprintUnchanged(t *testing.T) {
	index := NewMemoryIndex()
	provider := &countingProvider{vec: []float32{1, 0, 0}}
	ix := NewIndexer(index, provider)
	cat := oneTool("ping_host", "pings a host")

	require.NoError(t, ix.Reload(context.Background(), cat))
	ix.BackfillOnce(context.Background(), cat)
	require.Equal(t, 1, provider.calls)

	require.NoError(t, ix.Reload(context.Background(), cat))
	assert.False(t, ix.Pending("ping_host"), "unchanged fingerprint should not be re-marked pending")
	ix.BackfillOnce(context.Background(), cat)
	assert.Equal(t, 1, provider.calls, "unchanged fingerprint should not be re-embedded")
}

type stubProvider struct{ vec []float32 }

func (p stubProvider) ModelID() string { return "stub" }
func (p stubProvider) Dim() int        { return len(p.vec) }
func (p stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.vec, nil
}

type countingProvider struct {
	vec   []float32
	calls int
}

func (p *countingProvider) ModelID() string { return "stub" }
func (p *countingProvider) Dim() int        { return len(p.vec) }
func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	return p.vec, nil
}
