package gatewayconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"magictunnel/pkg/logging"
)

const subsystem = "ConfigLoader"

// Load reads configPath and merges it over Default(), the teacher's
// default-then-override pattern (internal/config.LoadConfig). A missing
// file is not an error: the gateway runs on defaults alone.
func Load(configPath string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info(subsystem, "no config file at %s, using defaults", configPath)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", configPath, err)
	}
	cfg = applyDefaults(cfg)

	if err := resolveSecretFiles(&cfg); err != nil {
		return Config{}, fmt.Errorf("resolving secret files for %s: %w", configPath, err)
	}

	logging.Info(subsystem, "loaded configuration from %s", configPath)
	return cfg, nil
}

// resolveSecretFiles reads the *File-suffixed secret paths declared in
// config (API keys, nothing else lives in the YAML directly), the teacher's
// convention for keeping credentials out of the checked-in config file.
func resolveSecretFiles(cfg *Config) error {
	if cfg.Embedding.APIKeyFile != "" && cfg.Embedding.apiKey == "" {
		key, err := readSecretFile(cfg.Embedding.APIKeyFile)
		if err != nil {
			return fmt.Errorf("embedding api_key_file: %w", err)
		}
		cfg.Embedding.apiKey = key
	}
	for name, provider := range cfg.LLM.Providers {
		if provider.APIKeyFile == "" || provider.apiKey != "" {
			continue
		}
		key, err := readSecretFile(provider.APIKeyFile)
		if err != nil {
			return fmt.Errorf("llm provider %q api_key_file: %w", name, err)
		}
		provider.apiKey = key
		cfg.LLM.Providers[name] = provider
	}
	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
