package catalog

import (
	"fmt"
	"sort"

	"magictunnel/pkg/mcperrors"
)

// ConflictPolicy selects how the merger resolves duplicate tool names across
// sources (SPEC_FULL.md §4.2).
type ConflictPolicy string

const (
	// PolicyError fails the merge if any duplicate name is found.
	PolicyError ConflictPolicy = "error"
	// PolicyFirstWins keeps the definition from the lexicographically first source.
	PolicyFirstWins ConflictPolicy = "first_wins"
	// PolicyLastWins keeps the definition from the lexicographically last source.
	PolicyLastWins ConflictPolicy = "last_wins"
	// PolicyRename appends a deterministic source suffix to every duplicate
	// past the first, so all colliding definitions remain callable.
	PolicyRename ConflictPolicy = "rename"
)

// Source is one named collection of tools contributed to a merge, e.g. one
// manifest file or one external source directory.
type Source struct {
	ID    string
	Tools []Tool
}

// Merge combines sources into a single Catalog snapshot under policy.
// Ordering across sources is by lexicographic source ID, so the result is a
// pure function of (policy, source IDs, collision set) — not of the order
// sources were loaded in (SPEC_FULL.md §8).
func Merge(sources []Source, policy ConflictPolicy) (*Catalog, error) {
	bySource := make(map[string][]Tool, len(sources))
	for _, s := range sources {
		bySource[s.ID] = s.Tools
	}
	ids := sortedSourceIDs(bySource)

	seen := make(map[string]string) // name -> source ID that claimed it
	var resolved []Tool

	for _, id := range ids {
		for _, t := range bySource[id] {
			owner, exists := seen[t.Name]
			if !exists {
				seen[t.Name] = id
				resolved = append(resolved, t)
				continue
			}

			switch policy {
			case PolicyError:
				return nil, mcperrors.New(mcperrors.Config,
					fmt.Sprintf("duplicate tool name %q from sources %q and %q", t.Name, owner, id))
			case PolicyFirstWins:
				// Keep the already-resolved definition; drop this one.
				continue
			case PolicyLastWins:
				resolved = replaceByName(resolved, t)
				continue
			case PolicyRename:
				renamed := t
				renamed.Name = fmt.Sprintf("%s__%s", t.Name, sourceSuffix(id))
				seen[renamed.Name] = id
				resolved = append(resolved, renamed)
			default:
				return nil, mcperrors.New(mcperrors.Config, fmt.Sprintf("unknown conflict policy %q", policy))
			}
		}
	}

	return newCatalog(resolved), nil
}

// replaceByName replaces the tool with the same name in place, preserving
// its original position so last_wins doesn't disturb ordering.
func replaceByName(tools []Tool, replacement Tool) []Tool {
	for i, t := range tools {
		if t.Name == replacement.Name {
			tools[i] = replacement
			return tools
		}
	}
	return append(tools, replacement)
}

// sourceSuffix derives a short, deterministic, name-safe suffix from a
// source identifier (typically a file path), e.g. "sourceB" from
// "/manifests/sourceB.yaml".
func sourceSuffix(sourceID string) string {
	base := sourceID
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' || base[i] == '\\' {
			base = base[i+1:]
			break
		}
	}
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			base = base[:i]
			break
		}
	}
	return base
}

// Split partitions a Catalog back into per-source Sources, the inverse of
// Merge under the identity source-partition, used to test the round-trip
// law in SPEC_FULL.md §8: merge(split(c)) == c.
func Split(c *Catalog) []Source {
	bySource := make(map[string][]Tool)
	var ids []string
	for _, t := range c.AllTools() {
		if _, ok := bySource[t.SourcePath]; !ok {
			ids = append(ids, t.SourcePath)
		}
		bySource[t.SourcePath] = append(bySource[t.SourcePath], t)
	}
	sort.Strings(ids)

	sources := make([]Source, 0, len(ids))
	for _, id := range ids {
		sources = append(sources, Source{ID: id, Tools: bySource[id]})
	}
	return sources
}
