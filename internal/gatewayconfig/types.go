// Package gatewayconfig is the core's Config struct (SPEC_FULL.md §6):
// listen endpoints, manifest roots, agent-kind enablement/defaults,
// conflict policy, discovery weights/threshold, embedding backend, LLM
// provider defaults, external-MCP server entries, session-storage backend
// selection, and concurrency limits, loaded from YAML with the teacher's
// default-then-override pattern. Named gatewayconfig, not config, to avoid
// confusion with the catalog's own manifest-file concept.
package gatewayconfig

import "time"

// Config is the top-level structure loaded from config.yaml.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Manifests ManifestsConfig `yaml:"manifests"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Agents    AgentsConfig    `yaml:"agents"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	External  []ExternalMCP   `yaml:"external_mcp_servers,omitempty"`
	Session   SessionConfig   `yaml:"session"`
}

// ListenConfig configures the gateway's own MCP server transport.
type ListenConfig struct {
	Transport string `yaml:"transport"` // "stdio" or "streamable-http"
	Address   string `yaml:"address,omitempty"`
}

// ManifestsConfig configures the catalog's manifest store (C1).
type ManifestsConfig struct {
	Roots          []string      `yaml:"roots"`
	DebounceWindow time.Duration `yaml:"debounce_window,omitempty"`
	SnapshotPath   string        `yaml:"snapshot_path,omitempty"` // accepted but unused: no component reads or writes a snapshot file
}

// GatewayConfig configures the MCP surface (C7).
type GatewayConfig struct {
	Prefix         string          `yaml:"prefix,omitempty"`
	ConflictPolicy string          `yaml:"conflict_policy,omitempty"` // error|first_wins|last_wins|rename
	SmartMode      bool            `yaml:"smart_discovery,omitempty"`
	Denylist       []string        `yaml:"denylist,omitempty"`
	Concurrency    ConcurrencyConfig `yaml:"concurrency"`
}

// ConcurrencyConfig bounds how much work the gateway admits at once.
type ConcurrencyConfig struct {
	MaxInflightCalls int `yaml:"max_inflight_calls,omitempty"`
}

// AgentKindConfig carries the retry-policy overrides for one agent kind
// (Open Question #1: retry policy is explicit per-kind config).
type AgentKindConfig struct {
	Enabled     *bool         `yaml:"enabled,omitempty"`
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
	BaseDelay   time.Duration `yaml:"base_delay,omitempty"`
	MaxDelay    time.Duration `yaml:"max_delay,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// AgentsConfig enables/configures the built-in executor kinds (C5).
type AgentsConfig struct {
	Kinds map[string]AgentKindConfig `yaml:"kinds,omitempty"`
}

// DiscoveryConfig configures smart discovery (C9).
type DiscoveryConfig struct {
	LexicalWeight       float64 `yaml:"lexical_weight,omitempty"`
	SemanticWeight      float64 `yaml:"semantic_weight,omitempty"`
	RuleWeight          float64 `yaml:"rule_weight,omitempty"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold,omitempty"`
	TopK                int     `yaml:"top_k,omitempty"`
	SynthesisModel      string  `yaml:"synthesis_model,omitempty"`
}

// EmbeddingConfig selects and configures the embedding index backend (C8).
type EmbeddingConfig struct {
	Backend          string `yaml:"backend,omitempty"` // "memory" or "postgres"
	PostgresDSN      string `yaml:"postgres_dsn,omitempty"`
	VectorDimensions int    `yaml:"vector_dimensions,omitempty"`
	Provider         string `yaml:"provider,omitempty"` // "openai" or "noop"
	Model            string `yaml:"model,omitempty"`
	APIKeyFile       string `yaml:"api_key_file,omitempty"`
	BaseURL          string `yaml:"base_url,omitempty"`

	// apiKey is populated from APIKeyFile by resolveSecretFiles; never
	// read directly from YAML so a checked-in config can't carry a
	// plaintext credential.
	apiKey string `yaml:"-"`
}

// LLMConfig configures the default LLM provider used by both the llm agent
// kind and discovery's parameter synthesis step.
type LLMConfig struct {
	DefaultProvider string                 `yaml:"default_provider,omitempty"`
	Providers       map[string]LLMProvider `yaml:"providers,omitempty"`
}

// LLMProvider is one named, configured LLM backend.
type LLMProvider struct {
	Kind       string `yaml:"kind"` // "openai", "anthropic", "ollama", "custom"
	APIKeyFile string `yaml:"api_key_file,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
	Host       string `yaml:"host,omitempty"` // ollama

	apiKey string `yaml:"-"`
}

// ExternalMCP declares one upstream MCP server to federate (C6).
type ExternalMCP struct {
	Name            string            `yaml:"name"`
	Transport       string            `yaml:"transport"` // stdio|sse|streamable_http
	Command         string            `yaml:"command,omitempty"`
	Args            []string          `yaml:"args,omitempty"`
	Env             map[string]string `yaml:"env,omitempty"`
	URL             string            `yaml:"url,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	TokenUserID     string            `yaml:"token_user_id,omitempty"`
	MaxOutstanding  int               `yaml:"max_outstanding,omitempty"`
	BackoffBase     time.Duration     `yaml:"backoff_base,omitempty"`
	BackoffMax      time.Duration     `yaml:"backoff_max,omitempty"`
	HandshakeBudget time.Duration     `yaml:"handshake_budget,omitempty"`
}

// SessionConfig selects and configures the session-token backend (C10).
type SessionConfig struct {
	Backend        string        `yaml:"backend,omitempty"` // memory|filesystem|redis|keychain
	FilesystemDir  string        `yaml:"filesystem_dir,omitempty"`
	RedisAddr      string        `yaml:"redis_addr,omitempty"`
	RedisKeyPrefix string        `yaml:"redis_key_prefix,omitempty"`
	RefreshMargin  time.Duration `yaml:"refresh_margin,omitempty"`
}
