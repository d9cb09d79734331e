package agent

import (
	"context"
	"fmt"
	"sync"

	"magictunnel/internal/agent/llm"
)

// LLMConfig is the rendered routing config for the llm kind.
type LLMConfig struct {
	Provider    string // "openai", "anthropic", "ollama", "custom"
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

func llmFromPlan(config map[string]any) (LLMConfig, error) {
	cfg := LLMConfig{Provider: "openai"}

	if p, ok := config["provider"].(string); ok && p != "" {
		cfg.Provider = p
	}
	model, _ := config["model"].(string)
	if model == "" {
		return cfg, fmt.Errorf("llm routing config missing %q", "model")
	}
	cfg.Model = model

	prompt, _ := config["prompt"].(string)
	if prompt == "" {
		return cfg, fmt.Errorf("llm routing config missing %q", "prompt")
	}
	cfg.Prompt = prompt

	if s, ok := config["system"].(string); ok {
		cfg.System = s
	}
	if mt, ok := config["max_tokens"].(int); ok {
		cfg.MaxTokens = mt
	}
	if temp, ok := config["temperature"].(float64); ok {
		cfg.Temperature = temp
	}
	return cfg, nil
}

// ProviderFactory builds an llm.Provider for a given provider name.
// Supplied by the caller at registration time so credentials and base
// URLs stay out of routing config (they come from process config/env).
type ProviderFactory func(provider string) (llm.Provider, error)

// LLMExecutor calls a provider with a rendered prompt, normalizing usage
// and error shapes across OpenAI, Anthropic, Ollama, and custom
// OpenAI-compatible endpoints.
type LLMExecutor struct {
	mu        sync.Mutex
	providers map[string]llm.Provider
	factory   ProviderFactory
}

// NewLLMExecutor creates an LLM executor. Providers are constructed lazily
// via factory and cached by provider name.
func NewLLMExecutor(factory ProviderFactory) *LLMExecutor {
	return &LLMExecutor{providers: make(map[string]llm.Provider), factory: factory}
}

func (e *LLMExecutor) providerFor(name string) (llm.Provider, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.providers[name]; ok {
		return p, nil
	}
	p, err := e.factory(name)
	if err != nil {
		return nil, err
	}
	e.providers[name] = p
	return p, nil
}

func (e *LLMExecutor) Execute(ctx context.Context, inv Invocation) (Result, error) {
	cfg, err := llmFromPlan(inv.Plan.Config)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}

	provider, err := e.providerFor(cfg.Provider)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}

	var messages []llm.Message
	if cfg.System != "" {
		messages = append(messages, llm.Message{Role: "system", Content: cfg.System})
	}
	messages = append(messages, llm.Message{Role: "user", Content: cfg.Prompt})

	response, err := provider.Complete(ctx, llm.Request{
		Model:       cfg.Model,
		Messages:    messages,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			return transportResultFromContext(ctx), nil
		}
		return TransportErrorResult(TransportUnavailable, err.Error()), nil
	}

	return SuccessResult(map[string]any{
		"content": response.Content,
		"usage": map[string]any{
			"prompt_tokens":     response.Usage.PromptTokens,
			"completion_tokens": response.Usage.CompletionTokens,
			"total_tokens":      response.Usage.TotalTokens,
		},
	}), nil
}
