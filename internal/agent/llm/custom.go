package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// CustomProvider calls an OpenAI-compatible chat completions endpoint that
// doesn't warrant a dedicated SDK: a plain POST of the OpenAI wire shape
// against a configurable base URL and bearer token.
type CustomProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewCustomProvider creates a custom OpenAI-compatible provider.
func NewCustomProvider(baseURL, apiKey string) *CustomProvider {
	return &CustomProvider{baseURL: baseURL, apiKey: apiKey, client: &http.Client{}}
}

type customChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type customChatRequest struct {
	Model       string              `json:"model"`
	Messages    []customChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

type customChatResponse struct {
	Choices []struct {
		Message customChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *CustomProvider) Complete(ctx context.Context, req Request) (Response, error) {
	body := customChatRequest{Model: req.Model, MaxTokens: req.MaxTokens, Temperature: req.Temperature}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, customChatMessage{Role: m.Role, Content: m.Content})
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("custom llm endpoint returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed customChatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Response{}, err
	}

	var content string
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}

	return Response{
		Content: content,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}
