package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// manifestFile is the on-disk shape of one manifest file: a list of tools.
// Unknown top-level fields are ignored for forward compatibility per
// SPEC_FULL.md §6; unknown agent kinds are caught later by validation
// against the live agent registry, not here.
type manifestFile struct {
	Tools []Tool `yaml:"tools"`
}

// ParseManifest parses one manifest file's bytes into a list of tools,
// tagging each with sourcePath and a content hash.
func ParseManifest(sourcePath string, data []byte) ([]Tool, error) {
	var doc manifestFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", sourcePath, err)
	}

	tools := make([]Tool, 0, len(doc.Tools))
	seen := make(map[string]bool, len(doc.Tools))
	for _, t := range doc.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("manifest %s: tool missing required field 'name'", sourcePath)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("manifest %s: duplicate tool name %q within the same file", sourcePath, t.Name)
		}
		seen[t.Name] = true

		t.SourcePath = sourcePath
		t.ContentHash = hashContent(t)
		tools = append(tools, t)
	}
	return tools, nil
}

// RenderManifest serializes tools back to manifest YAML. Used by the
// round-trip property in SPEC_FULL.md §8 ("parsing then re-emitting a
// manifest preserves semantic content"); field order may differ from the
// original file since yaml.Marshal walks the Tool struct's declared order.
func RenderManifest(tools []Tool) ([]byte, error) {
	doc := manifestFile{Tools: tools}
	return yaml.Marshal(doc)
}
