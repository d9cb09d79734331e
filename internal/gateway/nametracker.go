package gateway

import (
	"fmt"
	"sync"
)

// nameEntry records what an exposed tool name resolves back to.
type nameEntry struct {
	sourceID     string
	originalName string
}

// NameTracker applies a global gateway prefix (no per-source prefix) to
// every tool name it exposes, and resolves exposed names back to their
// source and original name. Grounded on the teacher's
// internal/aggregator/name_tracker.go, simplified: MagicTunnel's tool
// names come from one merged catalog rather than N independently
// registered backend servers, so there is one source id per tool
// (catalog.Tool.SourcePath) rather than a live "registered server" concept,
// and prompts/resources aren't prefixed separately since C7 doesn't expose
// per-server prompt/resource registries the way the teacher's aggregator
// does.
type NameTracker struct {
	mu       sync.RWMutex
	prefix   string
	names    map[string]nameEntry
	resolved map[string]string // sourceID+"\x00"+originalName -> exposed name, for idempotent re-exposure
}

// NewNameTracker creates a NameTracker. An empty prefix defaults to "mt",
// the way the teacher defaults to "x".
func NewNameTracker(prefix string) *NameTracker {
	if prefix == "" {
		prefix = "mt"
	}
	return &NameTracker{prefix: prefix, names: make(map[string]nameEntry), resolved: make(map[string]string)}
}

// Expose returns the exposed name for (sourceID, toolName), assigning a
// disambiguating suffix if a different tool has already claimed the naive
// prefixed name (this happens under catalog.PolicyRename, where the
// catalog itself already disambiguated the stored tool name, so in
// practice this is a defensive backstop rather than the common path).
func (nt *NameTracker) Expose(sourceID, toolName string) string {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	key := sourceID + "\x00" + toolName
	if existing, ok := nt.resolved[key]; ok {
		return existing
	}

	base := nt.prefix + "_" + toolName
	exposed := base
	for i := 2; ; i++ {
		entry, taken := nt.names[exposed]
		if !taken || entry.sourceID == sourceID {
			break
		}
		exposed = fmt.Sprintf("%s_%d", base, i)
	}

	nt.names[exposed] = nameEntry{sourceID: sourceID, originalName: toolName}
	nt.resolved[key] = exposed
	return exposed
}

// Resolve maps an exposed name back to its source id and original tool
// name.
func (nt *NameTracker) Resolve(exposed string) (sourceID, originalName string, ok bool) {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	entry, found := nt.names[exposed]
	if !found {
		return "", "", false
	}
	return entry.sourceID, entry.originalName, true
}
