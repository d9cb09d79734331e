// Package embedding implements the embedding index (C8, SPEC_FULL.md §4.7):
// a vector index of tool descriptions with ANN lookup, kept as a projection
// of the catalog and rebuilt idempotently on fingerprint change.
package embedding

import "context"

// Record is one embedding entry: a tool's text, its vector, and the
// fingerprint of the text it was computed from (SPEC_FULL.md §3). A Record
// is stale once Fingerprint no longer matches catalog.Fingerprint of the
// tool's current IndexedText.
type Record struct {
	ToolName    string
	Fingerprint string
	Vector      []float32
	Dim         int
	ModelID     string
}

// Index is implemented once per storage backend. All methods must be safe
// for concurrent use; Reload-time writes race with in-flight Search calls,
// so implementations guard their own state.
type Index interface {
	// Upsert stores or replaces the embedding for a tool.
	Upsert(ctx context.Context, rec Record) error
	// Delete removes a tool's embedding, e.g. when it leaves the catalog.
	Delete(ctx context.Context, toolName string) error
	// Get returns the current record for a tool, if any.
	Get(ctx context.Context, toolName string) (Record, bool, error)
	// Search returns the topK tools most similar to the query vector, sorted
	// by descending cosine similarity with ties broken by tool name for
	// determinism (SPEC_FULL.md §4.7).
	Search(ctx context.Context, query []float32, topK int) ([]ScoredTool, error)
	// LexicalSearch returns the topK tools by token-overlap score against
	// query, the fallback used while an embedding is pending (§4.7).
	LexicalSearch(ctx context.Context, query string, topK int) ([]ScoredTool, error)
	// Names returns every tool name currently indexed.
	Names(ctx context.Context) ([]string, error)
}

// ScoredTool pairs a tool name with a similarity or lexical score in
// [0, 1]-ish range (cosine similarity can be negative; callers normalize).
type ScoredTool struct {
	ToolName string
	Score    float64
}

// Provider produces an embedding vector for a piece of text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelID() string
	Dim() int
}
