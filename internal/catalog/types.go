// Package catalog implements the manifest store and capability merger
// (SPEC_FULL.md §4.1-4.2): it loads declarative tool manifests, resolves
// name conflicts between sources, and publishes an atomically swappable,
// name-indexed Catalog snapshot.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Annotations carries optional presentation/routing metadata for a Tool.
type Annotations struct {
	Hidden   bool              `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	Enabled  *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Category string            `yaml:"category,omitempty" json:"category,omitempty"`
	Tags     []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	Extra    map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// IsEnabled reports whether the tool is enabled; absent Enabled means true.
func (a Annotations) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Routing selects an agent kind and carries its configuration. Config is
// kept as a raw map so each agent kind's executor (internal/agent) can
// decode only the fields it understands; this keeps the catalog package
// decoupled from the set of supported agent kinds.
type Routing struct {
	Kind       string         `yaml:"kind" json:"kind"`
	Config     map[string]any `yaml:"config" json:"config"`
	BestEffort bool           `yaml:"best_effort,omitempty" json:"best_effort,omitempty"`
}

// Tool is a declarative record describing one invokable capability.
type Tool struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	InputSchema map[string]any `yaml:"input_schema" json:"input_schema"`
	Annotations Annotations    `yaml:"annotations,omitempty" json:"annotations,omitempty"`
	Routing     Routing        `yaml:"routing" json:"routing"`

	// Provenance, populated by the manifest store, not by manifest authors.
	SourcePath  string `yaml:"-" json:"-"`
	ContentHash string `yaml:"-" json:"-"`
}

// IndexedText returns the text used for lexical/semantic indexing (C8/C9):
// name, description, and tags concatenated. Two tools with the same
// IndexedText hash to the same embedding fingerprint.
func (t Tool) IndexedText() string {
	text := t.Name + "\n" + t.Description
	for _, tag := range t.Annotations.Tags {
		text += "\n" + tag
	}
	return text
}

// Fingerprint returns a stable hash of the tool's indexed text, used by the
// embedding index (C8) to detect when a tool's embedding must be recomputed.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// hashContent computes a deterministic content hash for a parsed tool,
// independent of map key order, used to detect unchanged manifest entries
// across reloads.
func hashContent(t Tool) string {
	// Canonicalize via JSON marshal of a stripped copy; encoding/json sorts
	// map keys, making the hash stable regardless of YAML key order.
	stripped := t
	stripped.SourcePath = ""
	stripped.ContentHash = ""
	b, err := json.Marshal(stripped)
	if err != nil {
		// Content hashing must never fail the load; fall back to name+desc.
		b = []byte(t.Name + t.Description)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
