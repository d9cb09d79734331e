package gatewayconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
manifests:
  roots:
    - /etc/magictunnel/manifests
gateway:
  prefix: custom
  smart_discovery: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/etc/magictunnel/manifests"}, cfg.Manifests.Roots)
	assert.Equal(t, "custom", cfg.Gateway.Prefix)
	assert.True(t, cfg.Gateway.SmartMode)
	// Untouched sections keep their defaults.
	assert.Equal(t, "rename", cfg.Gateway.ConflictPolicy)
	assert.Equal(t, "memory", cfg.Session.Backend)
}

func TestLoadResolvesAPIKeyFromSecretFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.txt")
	require.NoError(t, os.WriteFile(keyPath, []byte("sk-test-123\n"), 0o600))

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
manifests:
  roots: ["./manifests"]
embedding:
  provider: openai
  api_key_file: `+keyPath+`
`), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.Embedding.apiKey)
}

func TestValidateRejectsUnknownConflictPolicy(t *testing.T) {
	cfg := Default()
	cfg.Gateway.ConflictPolicy = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyManifestRoots(t *testing.T) {
	cfg := Default()
	cfg.Manifests.Roots = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresRedisAddrForRedisBackend(t *testing.T) {
	cfg := Default()
	cfg.Session.Backend = "redis"
	assert.Error(t, cfg.Validate())

	cfg.Session.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsExternalServerWithoutCommandForStdio(t *testing.T) {
	cfg := Default()
	cfg.External = []ExternalMCP{{Name: "svc", Transport: "stdio"}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateExternalServerNames(t *testing.T) {
	cfg := Default()
	cfg.External = []ExternalMCP{
		{Name: "svc", Transport: "stdio", Command: "echo"},
		{Name: "svc", Transport: "stdio", Command: "echo"},
	}
	assert.Error(t, cfg.Validate())
}

func TestRetryOverridesStartFromDocumentedDefault(t *testing.T) {
	cfg := Default()
	cfg.Agents.Kinds = map[string]AgentKindConfig{
		"http": {MaxAttempts: 7},
	}

	overrides := cfg.RetryOverrides()
	require.Contains(t, overrides, "http")
	assert.Equal(t, 7, overrides["http"].MaxAttempts)
	// BaseDelay wasn't overridden, so it keeps http's documented default.
	assert.NotZero(t, overrides["http"].BaseDelay)
}

func TestBuildFederationSpecsRejectsUnknownTransport(t *testing.T) {
	cfg := Default()
	cfg.External = []ExternalMCP{{Name: "svc", Transport: "carrier-pigeon"}}
	_, err := cfg.BuildFederationSpecs()
	assert.Error(t, err)
}

func TestBuildLLMProvidersFallsBackToDefaultProviderName(t *testing.T) {
	cfg := Default()
	cfg.LLM.DefaultProvider = "primary"
	cfg.LLM.Providers = map[string]LLMProvider{
		"primary": {Kind: "custom", BaseURL: "http://localhost:11434"},
	}

	factory, err := cfg.BuildLLMProviders()
	require.NoError(t, err)

	provider, err := factory("")
	require.NoError(t, err)
	assert.NotNil(t, provider)

	_, err = factory("missing")
	assert.Error(t, err)
}
