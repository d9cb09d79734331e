package gatewayconfig

import (
	"time"

	"magictunnel/internal/discovery"
)

// Default returns the documented zero-configuration default, in the
// teacher's GetDefaultConfigWithRoles style: every optional section is
// pre-populated with a runnable, local-only configuration rather than left
// to accumulate zero values across the codebase.
func Default() Config {
	return Config{
		Listen: ListenConfig{Transport: "stdio"},
		Manifests: ManifestsConfig{
			Roots:          []string{"./manifests"},
			DebounceWindow: 250 * time.Millisecond,
		},
		Gateway: GatewayConfig{
			Prefix:         "mt",
			ConflictPolicy: "rename",
			Concurrency:    ConcurrencyConfig{MaxInflightCalls: 64},
		},
		Discovery: DiscoveryConfig{
			LexicalWeight:       discovery.DefaultWeights.Lexical,
			SemanticWeight:      discovery.DefaultWeights.Semantic,
			RuleWeight:          discovery.DefaultWeights.Rule,
			ConfidenceThreshold: discovery.DefaultConfidenceThreshold,
			TopK:                discovery.DefaultTopK,
			SynthesisModel:      "gpt-4o-mini",
		},
		Embedding: EmbeddingConfig{
			Backend:          "memory",
			Provider:         "noop",
			VectorDimensions: 256,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
		},
		Session: SessionConfig{
			Backend:       "memory",
			RefreshMargin: 60 * time.Second,
		},
	}
}

// applyDefaults fills any zero-valued field the YAML document left unset,
// after unmarshaling on top of Default(). yaml.Unmarshal only overwrites
// keys present in the document, so this is a backstop for fields that are
// present-but-empty (e.g. an explicit `prefix: ""`) rather than the main
// defaulting mechanism. Manifest roots are not filled in here; an empty
// list is left for Validate to reject.
func applyDefaults(c Config) Config {
	if c.Gateway.Prefix == "" {
		c.Gateway.Prefix = "mt"
	}
	if c.Gateway.ConflictPolicy == "" {
		c.Gateway.ConflictPolicy = "rename"
	}
	if c.Gateway.Concurrency.MaxInflightCalls <= 0 {
		c.Gateway.Concurrency.MaxInflightCalls = 64
	}
	if c.Discovery.TopK <= 0 {
		c.Discovery.TopK = discovery.DefaultTopK
	}
	if c.Discovery.ConfidenceThreshold <= 0 {
		c.Discovery.ConfidenceThreshold = discovery.DefaultConfidenceThreshold
	}
	if c.Embedding.Backend == "" {
		c.Embedding.Backend = "memory"
	}
	if c.Embedding.VectorDimensions <= 0 {
		c.Embedding.VectorDimensions = 256
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.RefreshMargin <= 0 {
		c.Session.RefreshMargin = 60 * time.Second
	}
	if c.Listen.Transport == "" {
		c.Listen.Transport = "stdio"
	}
	return c
}
