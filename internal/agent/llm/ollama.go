package llm

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaProvider calls a local or remote Ollama instance, grounded on the
// teacher pack's pkg/llms/ollama adapter: resolve the client from the
// environment when possible, otherwise fall back to an explicit host.
type OllamaProvider struct {
	client *api.Client
}

// NewOllamaProvider creates an Ollama provider. host may be "" to use
// OLLAMA_HOST from the environment, falling back to the local default.
func NewOllamaProvider(host string) (*OllamaProvider, error) {
	if client, err := api.ClientFromEnvironment(); err == nil && host == "" {
		return &OllamaProvider{client: client}, nil
	}

	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	parsed, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return &OllamaProvider{client: api.NewClient(parsed, nil)}, nil
}

func (p *OllamaProvider) Complete(ctx context.Context, req Request) (Response, error) {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   &stream,
	}
	if req.Temperature > 0 {
		chatReq.Options = map[string]any{"temperature": req.Temperature}
	}

	var response Response
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		response.Content += resp.Message.Content
		response.Usage = Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return response, nil
}
