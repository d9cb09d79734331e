package gatewayconfig

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"magictunnel/internal/agent"
	"magictunnel/internal/agent/llm"
	"magictunnel/internal/catalog"
	"magictunnel/internal/discovery"
	"magictunnel/internal/embedding"
	"magictunnel/internal/federation"
	"magictunnel/internal/session"
	"magictunnel/pkg/mcperrors"
)

// ConflictPolicy maps the configured string to catalog.ConflictPolicy,
// already checked valid by Validate.
func (c Config) ConflictPolicy() catalog.ConflictPolicy {
	return catalog.ConflictPolicy(c.Gateway.ConflictPolicy)
}

// DiscoveryPipelineConfig converts the YAML-facing shape to discovery.Config
// for discovery.New.
func (c Config) DiscoveryPipelineConfig() discovery.Config {
	return discovery.Config{
		Weights: discovery.Weights{
			Lexical:  c.Discovery.LexicalWeight,
			Semantic: c.Discovery.SemanticWeight,
			Rule:     c.Discovery.RuleWeight,
		},
		ConfidenceThreshold: c.Discovery.ConfidenceThreshold,
		TopK:                c.Discovery.TopK,
		SynthesisModel:      c.Discovery.SynthesisModel,
	}
}

// BuildEmbedding constructs the configured embedding index and provider
// (C8). The returned index has no schema applied yet; callers using the
// postgres backend must call EnsureSchema themselves once, since doing so
// here would make config construction perform DDL as a side effect.
func (c Config) BuildEmbedding(ctx context.Context) (embedding.Index, embedding.Provider, error) {
	var idx embedding.Index
	switch c.Embedding.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, c.Embedding.PostgresDSN)
		if err != nil {
			return nil, nil, mcperrors.Wrap(mcperrors.Config, err, "connecting embedding.postgres_dsn")
		}
		idx = embedding.NewPostgresIndex(pool, c.Embedding.VectorDimensions)
	default:
		idx = embedding.NewMemoryIndex()
	}

	var provider embedding.Provider
	switch c.Embedding.Provider {
	case "openai":
		provider = embedding.NewOpenAIProvider(c.Embedding.apiKey, c.Embedding.BaseURL, c.Embedding.Model, c.Embedding.VectorDimensions)
	default:
		provider = embedding.NoopProvider{DimN: c.Embedding.VectorDimensions}
	}

	return idx, provider, nil
}

// BuildLLMProviders constructs every configured LLM provider plus the
// factory agent.NewLLMExecutor and discovery.Synthesize need to look one up
// by name at call time.
func (c Config) BuildLLMProviders() (agent.ProviderFactory, error) {
	built := make(map[string]llm.Provider, len(c.LLM.Providers))
	for name, p := range c.LLM.Providers {
		provider, err := buildOneLLMProvider(p)
		if err != nil {
			return nil, fmt.Errorf("llm provider %q: %w", name, err)
		}
		built[name] = provider
	}

	return func(name string) (llm.Provider, error) {
		if name == "" {
			name = c.LLM.DefaultProvider
		}
		provider, ok := built[name]
		if !ok {
			return nil, mcperrors.New(mcperrors.Config, fmt.Sprintf("no configured llm provider named %q", name))
		}
		return provider, nil
	}, nil
}

func buildOneLLMProvider(p LLMProvider) (llm.Provider, error) {
	switch p.Kind {
	case "openai":
		return llm.NewOpenAIProvider(p.apiKey, p.BaseURL), nil
	case "anthropic":
		return llm.NewAnthropicProvider(p.apiKey), nil
	case "ollama":
		return llm.NewOllamaProvider(p.Host)
	case "custom":
		return llm.NewCustomProvider(p.BaseURL, p.apiKey), nil
	default:
		return nil, mcperrors.New(mcperrors.Config, fmt.Sprintf("unsupported llm provider kind %q", p.Kind))
	}
}

// BuildSessionManager constructs the configured session.Backend wrapped in
// a session.Manager (C10). refresh may be nil, in which case the manager
// never refreshes a token.
func (c Config) BuildSessionManager(refresh session.RefreshFunc) (*session.Manager, error) {
	var backend session.Backend
	switch c.Session.Backend {
	case "filesystem":
		fsBackend, err := session.NewFilesystemBackend(c.Session.FilesystemDir)
		if err != nil {
			return nil, err
		}
		backend = fsBackend
	case "redis":
		backend = session.NewRedisBackend(redis.NewClient(&redis.Options{Addr: c.Session.RedisAddr}), c.Session.RedisKeyPrefix)
	case "keychain":
		backend = session.NewKeychainBackend()
	default:
		backend = session.NewMemoryBackend()
	}
	return session.NewManager(backend, refresh, c.Session.RefreshMargin), nil
}

// BuildFederationSpecs converts the configured external MCP servers into
// federation.ServerSpec values ready for federation.Registry.Register.
func (c Config) BuildFederationSpecs() ([]federation.ServerSpec, error) {
	specs := make([]federation.ServerSpec, 0, len(c.External))
	for _, ext := range c.External {
		kind := federation.TransportKind(ext.Transport)
		switch kind {
		case federation.TransportStdio, federation.TransportSSE, federation.TransportStreamableHTTP:
		default:
			return nil, mcperrors.New(mcperrors.Config, fmt.Sprintf("external_mcp_servers[%s]: unsupported transport %q", ext.Name, ext.Transport))
		}
		specs = append(specs, federation.ServerSpec{
			Name:            ext.Name,
			Kind:            kind,
			Command:         ext.Command,
			Args:            ext.Args,
			Env:             ext.Env,
			URL:             ext.URL,
			Headers:         ext.Headers,
			TokenUserID:     ext.TokenUserID,
			MaxOutstanding:  ext.MaxOutstanding,
			BackoffBase:     ext.BackoffBase,
			BackoffMax:      ext.BackoffMax,
			HandshakeBudget: ext.HandshakeBudget,
		})
	}
	return specs, nil
}

// RetryOverrides builds the per-kind RetryPolicy overrides (Open Question
// #1) for agent.RegisterBuiltins, starting from each kind's documented
// default and applying only the fields the config actually set.
func (c Config) RetryOverrides() map[string]agent.RetryPolicy {
	overrides := make(map[string]agent.RetryPolicy, len(c.Agents.Kinds))
	for kind, override := range c.Agents.Kinds {
		policy := agent.DefaultRetryPolicy(kind)
		if override.MaxAttempts > 0 {
			policy.MaxAttempts = override.MaxAttempts
		}
		if override.BaseDelay > 0 {
			policy.BaseDelay = override.BaseDelay
		}
		if override.MaxDelay > 0 {
			policy.MaxDelay = override.MaxDelay
		}
		if override.Timeout > 0 {
			policy.Timeout = override.Timeout
		}
		overrides[kind] = policy
	}
	return overrides
}

// DisabledKinds lists the agent kinds explicitly turned off in config, for
// cmd/magictunneld to skip during catalog validation's KnownKind check.
func (c Config) DisabledKinds() map[string]bool {
	disabled := make(map[string]bool)
	for kind, override := range c.Agents.Kinds {
		if override.Enabled != nil && !*override.Enabled {
			disabled[kind] = true
		}
	}
	return disabled
}

// DenylistSet converts the configured denylist into the map shape
// gateway.DenylistHook expects.
func (c Config) DenylistSet() map[string]bool {
	set := make(map[string]bool, len(c.Gateway.Denylist))
	for _, name := range c.Gateway.Denylist {
		set[name] = true
	}
	return set
}
