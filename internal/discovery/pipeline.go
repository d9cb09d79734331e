package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"magictunnel/internal/agent/llm"
	"magictunnel/internal/catalog"
	"magictunnel/internal/embedding"
	"magictunnel/pkg/mcperrors"
)

// Config bundles the tunables Open Question #2 asks to be exposed as
// configuration rather than hardcoded.
type Config struct {
	Weights             Weights
	ConfidenceThreshold float64
	TopK                int
	SynthesisModel      string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Weights:             DefaultWeights,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		TopK:                DefaultTopK,
		SynthesisModel:      "gpt-4o-mini",
	}
}

// CatalogSource supplies the current catalog snapshot. Satisfied directly
// by (*catalog.Registry).Snapshot.
type CatalogSource func() *catalog.Catalog

// Pipeline implements Discover + Synthesize (SPEC_FULL.md §4.7).
type Pipeline struct {
	catalog  CatalogSource
	index    embedding.Index
	embedder embedding.Provider
	llm      llm.Provider
	booster  RuleBooster
	cfg      Config
}

// New creates a discovery Pipeline. booster may be nil.
func New(catalogSource CatalogSource, index embedding.Index, embedder embedding.Provider, llmProvider llm.Provider, booster RuleBooster, cfg Config) *Pipeline {
	return &Pipeline{catalog: catalogSource, index: index, embedder: embedder, llm: llmProvider, booster: booster, cfg: cfg}
}

// Discover scores every visible tool against request and returns either a
// confident Selected candidate or the ranked list for the caller to choose
// from (SPEC_FULL.md §4.7).
func (p *Pipeline) Discover(ctx context.Context, request string, hints map[string]any) (Result, error) {
	cat := p.catalog()
	if cat.Len() == 0 {
		return Result{}, nil
	}

	var queryVector []float32
	if p.embedder != nil {
		if v, err := p.embedder.Embed(ctx, request); err == nil {
			queryVector = v
		}
		// Embed failures (including NoopProvider's deliberate error) are not
		// fatal: the scorer degrades to lexical-only, per §4.7.
	}

	candidates, err := score(ctx, cat, p.index, request, queryVector, p.cfg.Weights, p.booster, hints)
	if err != nil {
		return Result{}, mcperrors.Wrap(mcperrors.Internal, err, "scoring discovery candidates")
	}

	topK := p.cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	result := Result{Candidates: candidates}
	if len(candidates) > 0 && candidates[0].Score >= p.cfg.ConfidenceThreshold {
		selected := candidates[0]
		result.Selected = &selected
	}
	return result, nil
}

const synthesisSystemPromptTemplate = `You map a natural-language request onto the arguments of one tool.
Tool name: %s
Tool description: %s
Arguments JSON Schema:
%s

Respond with ONLY a JSON object matching the schema above. No prose, no markdown fences.`

// Synthesize asks the LLM for a JSON arguments object matching tool's
// input_schema for the given free-form request, validates it, and retries
// once with the validation error appended on failure (SPEC_FULL.md §4.7).
func (p *Pipeline) Synthesize(ctx context.Context, tool catalog.Tool, request string) (map[string]any, error) {
	if p.llm == nil {
		return nil, mcperrors.New(mcperrors.Config, "discovery synthesis requires an LLM provider")
	}

	schemaJSON, err := json.MarshalIndent(tool.InputSchema, "", "  ")
	if err != nil {
		return nil, mcperrors.Wrap(mcperrors.Internal, err, "marshaling input_schema for synthesis")
	}
	system := fmt.Sprintf(synthesisSystemPromptTemplate, tool.Name, tool.Description, string(schemaJSON))

	args, firstErr := p.synthesizeAndValidate(ctx, tool, system, request, "")
	if firstErr == nil {
		return args, nil
	}

	args, retryErr := p.synthesizeAndValidate(ctx, tool, system, request, firstErr.Error())
	if retryErr != nil {
		return nil, mcperrors.Wrap(mcperrors.Validation, retryErr, "parameter synthesis failed validation twice for "+tool.Name)
	}
	return args, nil
}

func (p *Pipeline) synthesizeAndValidate(ctx context.Context, tool catalog.Tool, system, request, validationError string) (map[string]any, error) {
	args, err := p.synthesizeOnce(ctx, system, request, validationError)
	if err != nil {
		return nil, err
	}
	if err := catalog.ValidateArguments(tool, args); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Pipeline) synthesizeOnce(ctx context.Context, system, request, validationError string) (map[string]any, error) {
	userContent := request
	if validationError != "" {
		userContent = fmt.Sprintf("%s\n\nYour previous response failed schema validation: %s\nReturn a corrected JSON object.", request, validationError)
	}

	model := p.cfg.SynthesisModel
	if model == "" {
		model = DefaultConfig().SynthesisModel
	}

	resp, err := p.llm.Complete(ctx, llm.Request{
		Model: model,
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: userContent},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, mcperrors.Wrap(mcperrors.UpstreamUnavailable, err, "calling LLM for parameter synthesis")
	}

	var args map[string]any
	raw := extractJSON(resp.Content)
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("LLM did not return valid JSON: %w", err)
	}

	return args, nil
}

// extractJSON strips a ```json fenced block if present; some models wrap
// structured output in markdown even when instructed not to.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
