package embedding

import (
	"context"
	"sync"

	"magictunnel/internal/catalog"
	"magictunnel/pkg/logging"
)

const subsystem = "EmbeddingIndexer"

// Indexer keeps an Index synchronized with a catalog.Registry, the
// "embedding index as a projection of the catalog, rebuilt idempotently"
// design note (SPEC_FULL.md §9). It maintains the pending-embed set
// required by the invariant in §3: every catalog tool either has a current
// record or is marked pending. With a MemoryIndex, pending tools are
// lexically searchable in the meantime; a PostgresIndex keeps lexical text
// on the embedding row, so there a tool becomes lexically searchable only
// once BackfillOnce has embedded it.
type Indexer struct {
	index    Index
	provider Provider

	mu      sync.Mutex
	pending map[string]bool
}

// NewIndexer wires an Index to a Provider. provider may be NoopProvider,
// in which case every tool stays pending and discovery falls back to
// lexical scoring alone, matching §4.7's documented degraded mode.
func NewIndexer(index Index, provider Provider) *Indexer {
	return &Indexer{index: index, provider: provider, pending: make(map[string]bool)}
}

// Reload compares cat against the index's current contents and brings the
// index up to date: removes tools no longer present, indexes lexical text
// for every tool of a MemoryIndex (cheap, synchronous), and marks tools whose fingerprint
// changed (or that are entirely new) as pending for BackfillOnce to embed.
// This is called from the same place the catalog registry publishes a new
// snapshot, keeping "one reload cycle" (§3's invariant) meaningful.
func (ix *Indexer) Reload(ctx context.Context, cat *catalog.Catalog) error {
	live := make(map[string]bool)
	for _, tool := range cat.AllTools() {
		live[tool.Name] = true
		text := tool.IndexedText()
		fp := catalog.Fingerprint(text)

		if mem, ok := ix.index.(*MemoryIndex); ok {
			mem.IndexLexical(tool.Name, text)
		}

		rec, found, err := ix.index.Get(ctx, tool.Name)
		if err != nil {
			logging.Error(subsystem, err, "checking existing embedding for %s", tool.Name)
			continue
		}
		if found && rec.Fingerprint == fp {
			continue
		}
		ix.markPending(tool.Name)
	}

	names, err := ix.index.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if !live[name] {
			if err := ix.index.Delete(ctx, name); err != nil {
				logging.Error(subsystem, err, "purging stale embedding for %s", name)
			}
			ix.clearPending(name)
		}
	}
	return nil
}

func (ix *Indexer) markPending(name string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.pending[name] = true
}

func (ix *Indexer) clearPending(name string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.pending, name)
}

// Pending reports whether toolName currently lacks a current embedding.
func (ix *Indexer) Pending(toolName string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.pending[toolName]
}

// BackfillOnce embeds every currently pending tool once, meant to be called
// by a background worker loop (SPEC_FULL.md §4.7's "Missing embeddings are
// filled by a background worker"). cat supplies the indexed text to embed;
// tools removed from the catalog since being marked pending are skipped.
func (ix *Indexer) BackfillOnce(ctx context.Context, cat *catalog.Catalog) {
	ix.mu.Lock()
	names := make([]string, 0, len(ix.pending))
	for name := range ix.pending {
		names = append(names, name)
	}
	ix.mu.Unlock()

	for _, name := range names {
		tool, ok := cat.Get(name)
		if !ok {
			ix.clearPending(name)
			continue
		}

		text := tool.IndexedText()
		vec, err := ix.provider.Embed(ctx, text)
		if err != nil {
			logging.Debug(subsystem, "embedding %s deferred: %v", name, err)
			continue
		}

		err = ix.index.Upsert(ctx, Record{
			ToolName:    name,
			Fingerprint: catalog.Fingerprint(text),
			Vector:      vec,
			Dim:         len(vec),
			ModelID:     ix.provider.ModelID(),
		})
		if err != nil {
			logging.Error(subsystem, err, "upserting embedding for %s", name)
			continue
		}
		if pg, ok := ix.index.(*PostgresIndex); ok {
			if err := pg.IndexLexical(ctx, name, text); err != nil {
				logging.Error(subsystem, err, "indexing lexical text for %s", name)
			}
		}
		ix.clearPending(name)
	}
}

// Run blocks, calling BackfillOnce against the catalog's current snapshot
// once per tick until ctx is cancelled. snapshot returns the live catalog
// (normally registry.Snapshot).
func (ix *Indexer) Run(ctx context.Context, snapshot func() *catalog.Catalog, tick <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			ix.BackfillOnce(ctx, snapshot())
		}
	}
}
