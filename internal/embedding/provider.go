package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"magictunnel/pkg/mcperrors"
)

// OpenAIProvider calls the OpenAI (or OpenAI-compatible) embeddings
// endpoint, reusing the same SDK the agent/llm package uses for chat
// completions (SPEC_FULL.md §4.7).
type OpenAIProvider struct {
	client openai.Client
	model  string
	dim    int
}

// NewOpenAIProvider creates an embeddings provider for model (e.g.
// "text-embedding-3-small", dim 1536). baseURL is optional.
func NewOpenAIProvider(apiKey, baseURL, model string, dim int) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: model, dim: dim}
}

func (p *OpenAIProvider) ModelID() string { return p.model }
func (p *OpenAIProvider) Dim() int        { return p.dim }

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, mcperrors.Wrap(mcperrors.UpstreamUnavailable, err, "calling embeddings endpoint")
	}
	if len(resp.Data) == 0 {
		return nil, mcperrors.New(mcperrors.UpstreamError, "embeddings endpoint returned no vectors")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// NoopProvider is used in tests and in deployments that disable smart
// discovery's semantic signal; it reports a fixed dim but always errors on
// Embed so callers fall back to lexical-only scoring rather than silently
// indexing zero vectors.
type NoopProvider struct{ DimN int }

func (p NoopProvider) ModelID() string { return "none" }
func (p NoopProvider) Dim() int        { return p.DimN }
func (p NoopProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding provider not configured")
}
