// Package llm normalizes chat-completion calls across providers (OpenAI,
// Anthropic, Ollama, and custom OpenAI-compatible endpoints) to one
// request/response shape, the way the teacher's pkg/llms/ollama adapter
// normalizes an Ollama client behind a shared provider interface.
package llm

import "context"

// Message is one turn in a chat-style prompt.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// ResponseSchema is a JSON Schema for structured output. It is carried
	// on the request only: none of the providers in this package sends it
	// to the backend or checks the response against it.
	ResponseSchema map[string]any
}

// Usage normalizes token accounting across providers.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a provider-agnostic completion result.
type Response struct {
	Content string
	Usage   Usage
}

// Provider is implemented once per backend (OpenAI-compatible, Anthropic,
// Ollama, custom HTTP).
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
