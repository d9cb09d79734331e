package embedding

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex is the default, zero-external-dependency backend: a
// cosine-similarity scan over in-memory vectors plus an inverted lexical
// index of tokens, sufficient for catalogs up to the size this gateway is
// expected to serve without a dedicated vector database.
type MemoryIndex struct {
	mu       sync.RWMutex
	records  map[string]Record
	lexical  map[string]map[string]int // token -> toolName -> term frequency
	textByID map[string]string         // toolName -> indexed text (every lexically indexed tool)
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		records:  make(map[string]Record),
		lexical:  make(map[string]map[string]int),
		textByID: make(map[string]string),
	}
}

func (idx *MemoryIndex) Upsert(_ context.Context, rec Record) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.records[rec.ToolName] = rec
	return nil
}

// IndexLexical registers text for lexical search under toolName,
// independent of whether a vector embedding exists yet (§4.7: "discovery
// during a partial state falls back to lexical scoring alone").
func (idx *MemoryIndex) IndexLexical(toolName, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.textByID[toolName] = text
	idx.reindexLocked(toolName, text)
}

func (idx *MemoryIndex) reindexLocked(toolName, text string) {
	for token, freq := range tokenize(text) {
		if idx.lexical[token] == nil {
			idx.lexical[token] = make(map[string]int)
		}
		idx.lexical[token][toolName] = freq
	}
}

func (idx *MemoryIndex) Delete(_ context.Context, toolName string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.records, toolName)
	delete(idx.textByID, toolName)
	for token, postings := range idx.lexical {
		delete(postings, toolName)
		if len(postings) == 0 {
			delete(idx.lexical, token)
		}
	}
	return nil
}

func (idx *MemoryIndex) Get(_ context.Context, toolName string) (Record, bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	r, ok := idx.records[toolName]
	return r, ok, nil
}

func (idx *MemoryIndex) Names(_ context.Context) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	names := make([]string, 0, len(idx.textByID))
	for name := range idx.textByID {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (idx *MemoryIndex) Search(_ context.Context, query []float32, topK int) ([]ScoredTool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	scored := make([]ScoredTool, 0, len(idx.records))
	for name, rec := range idx.records {
		scored = append(scored, ScoredTool{ToolName: name, Score: cosineSimilarity(query, rec.Vector)})
	}
	return topN(scored, topK), nil
}

func (idx *MemoryIndex) LexicalSearch(_ context.Context, query string, topK int) ([]ScoredTool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	queryTokens := tokenize(query)
	totals := make(map[string]float64)
	for token := range queryTokens {
		postings := idx.lexical[token]
		for name, freq := range postings {
			// BM25-style: log-dampened term frequency weighted by rarity
			// across the corpus (fewer tools containing the token score
			// higher per match).
			idf := math.Log(1 + float64(len(idx.textByID))/float64(1+len(postings)))
			totals[name] += (1 + math.Log(float64(freq))) * idf
		}
	}

	scored := make([]ScoredTool, 0, len(totals))
	for name, score := range totals {
		scored = append(scored, ScoredTool{ToolName: name, Score: score})
	}
	return topN(scored, topK), nil
}

func topN(scored []ScoredTool, n int) []ScoredTool {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ToolName < scored[j].ToolName // deterministic tie-break, SPEC_FULL.md §4.7
	})
	if n > 0 && len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(text string) map[string]int {
	freq := make(map[string]int)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(tok) < 2 {
			continue
		}
		freq[tok]++
	}
	return freq
}
