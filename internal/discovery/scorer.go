package discovery

import (
	"context"
	"sort"

	"magictunnel/internal/catalog"
	"magictunnel/internal/embedding"
)

// normalizeRelative maps raw BM25-style lexical scores (unbounded) into
// [0, 1] by scaling against the best score in this query's own result set,
// so "the top lexical match for this query" always lands near 1.0
// regardless of corpus size or absolute term-frequency magnitudes. This is
// what makes the boundary case in SPEC_FULL.md §8 hold structurally: a
// single-tool catalog queried with the tool's own name always produces a
// top (and only) lexical hit normalized to 1.0.
func normalizeRelative(hits []embedding.ScoredTool) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	max := hits[0].Score
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	if max <= 0 {
		return out
	}
	for _, h := range hits {
		out[h.ToolName] = h.Score / max
	}
	return out
}

// score computes the weighted combination of the three signals for every
// visible tool in cat, using idx for lexical/semantic lookups. When
// queryVector is nil (embedding unavailable) or the semantic search finds
// no embedded tool (every candidate still pending), the semantic term is dropped and its
// weight is folded into lexical so the pipeline degrades gracefully
// (SPEC_FULL.md §4.7: "discovery during a partial state falls back to
// lexical scoring alone").
func score(ctx context.Context, cat *catalog.Catalog, idx embedding.Index, queryText string, queryVector []float32, weights Weights, booster RuleBooster, hints map[string]any) ([]Candidate, error) {
	lexicalHits, err := idx.LexicalSearch(ctx, queryText, 0)
	if err != nil {
		return nil, err
	}
	lexicalByName := normalizeRelative(lexicalHits)

	semanticByName := make(map[string]float64)
	effectiveWeights := weights
	if len(queryVector) > 0 {
		semanticHits, err := idx.Search(ctx, queryVector, 0)
		if err != nil {
			return nil, err
		}
		for _, h := range semanticHits {
			semanticByName[h.ToolName] = h.Score
		}
	}
	if len(semanticByName) == 0 {
		effectiveWeights.Lexical += effectiveWeights.Semantic
		effectiveWeights.Semantic = 0
	}

	visible := cat.VisibleTools()
	candidates := make([]Candidate, 0, len(visible))
	for _, tool := range visible {
		c := Candidate{
			ToolName: tool.Name,
			Lexical:  lexicalByName[tool.Name],
			Semantic: semanticByName[tool.Name],
		}
		if booster != nil {
			c.Rule = booster(tool.Name, tool.Annotations.Tags, tool.Annotations.Category, hints)
		}
		c.Score = effectiveWeights.Lexical*c.Lexical + effectiveWeights.Semantic*c.Semantic + effectiveWeights.Rule*c.Rule
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ToolName < candidates[j].ToolName
	})
	return candidates, nil
}
