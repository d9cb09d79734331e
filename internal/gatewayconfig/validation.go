package gatewayconfig

import "fmt"

// Validate checks invariants Load can't enforce purely through
// defaulting: the places where an unrecognized or missing value would
// otherwise surface as a confusing failure deep inside catalog/session/
// embedding construction instead of a clear startup error (exit code 2,
// per SPEC_FULL.md §6).
func (c Config) Validate() error {
	switch c.Listen.Transport {
	case "stdio", "streamable-http":
	default:
		return fmt.Errorf("listen.transport: unsupported value %q", c.Listen.Transport)
	}
	if c.Listen.Transport == "streamable-http" && c.Listen.Address == "" {
		return fmt.Errorf("listen.address is required for transport %q", c.Listen.Transport)
	}

	if len(c.Manifests.Roots) == 0 {
		return fmt.Errorf("manifests.roots must name at least one directory")
	}

	switch c.Gateway.ConflictPolicy {
	case "error", "first_wins", "last_wins", "rename":
	default:
		return fmt.Errorf("gateway.conflict_policy: unsupported value %q", c.Gateway.ConflictPolicy)
	}

	if w := c.Discovery.LexicalWeight + c.Discovery.SemanticWeight + c.Discovery.RuleWeight; c.Gateway.SmartMode && w <= 0 {
		return fmt.Errorf("discovery weights must sum to a positive value when smart_discovery is enabled, got %v", w)
	}
	if c.Discovery.ConfidenceThreshold < 0 || c.Discovery.ConfidenceThreshold > 1 {
		return fmt.Errorf("discovery.confidence_threshold must be in [0,1], got %v", c.Discovery.ConfidenceThreshold)
	}

	switch c.Embedding.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("embedding.backend: unsupported value %q", c.Embedding.Backend)
	}
	if c.Embedding.Backend == "postgres" && c.Embedding.PostgresDSN == "" {
		return fmt.Errorf("embedding.postgres_dsn is required when embedding.backend is \"postgres\"")
	}
	switch c.Embedding.Provider {
	case "openai", "noop", "":
	default:
		return fmt.Errorf("embedding.provider: unsupported value %q", c.Embedding.Provider)
	}

	switch c.Session.Backend {
	case "memory", "filesystem", "redis", "keychain":
	default:
		return fmt.Errorf("session.backend: unsupported value %q", c.Session.Backend)
	}
	if c.Session.Backend == "filesystem" && c.Session.FilesystemDir == "" {
		return fmt.Errorf("session.filesystem_dir is required when session.backend is \"filesystem\"")
	}
	if c.Session.Backend == "redis" && c.Session.RedisAddr == "" {
		return fmt.Errorf("session.redis_addr is required when session.backend is \"redis\"")
	}

	seen := make(map[string]bool, len(c.External))
	for _, ext := range c.External {
		if ext.Name == "" {
			return fmt.Errorf("external_mcp_servers: entry with empty name")
		}
		if seen[ext.Name] {
			return fmt.Errorf("external_mcp_servers: duplicate name %q", ext.Name)
		}
		seen[ext.Name] = true

		switch ext.Transport {
		case "stdio":
			if ext.Command == "" {
				return fmt.Errorf("external_mcp_servers[%s]: command is required for stdio transport", ext.Name)
			}
		case "sse", "streamable_http":
			if ext.URL == "" {
				return fmt.Errorf("external_mcp_servers[%s]: url is required for %s transport", ext.Name, ext.Transport)
			}
		default:
			return fmt.Errorf("external_mcp_servers[%s]: unsupported transport %q", ext.Name, ext.Transport)
		}
	}

	return nil
}
