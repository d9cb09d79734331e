package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestStoreLoadZeroToolsYieldsEmptyCatalog(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 0)

	sources, err := store.Load()
	require.NoError(t, err)

	c, err := Merge(sources, PolicyError)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestStoreLoadKeepsLastGoodOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "tools.yaml", `
tools:
  - name: echo
    routing: {kind: subprocess}
`)

	store := NewStore(dir, 0)
	sources, err := store.Load()
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Len(t, sources[0].Tools, 1)

	// Now corrupt the file with invalid YAML.
	require.NoError(t, os.WriteFile(path, []byte("tools: [this is not valid yaml: ["), 0644))

	sources, err = store.Load()
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Len(t, sources[0].Tools, 1, "last-known-good contribution should be preserved")
	assert.NotEmpty(t, store.Errors())
}

func TestStoreLoadNonexistentRootYieldsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist"), 0)
	sources, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestStoreWatchTriggersCallbackOnChange(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "tools.yaml", "tools: []\n")

	store := NewStore(dir, 20*time.Millisecond)
	triggered := make(chan struct{}, 1)
	require.NoError(t, store.Watch(func() {
		select {
		case triggered <- struct{}{}:
		default:
		}
	}))
	defer store.Stop()

	writeManifest(t, dir, "tools.yaml", "tools:\n  - name: echo\n    routing: {kind: subprocess}\n")

	select {
	case <-triggered:
	case <-time.After(2 * time.Second):
		t.Fatal("expected watch callback to fire after file write")
	}
}
