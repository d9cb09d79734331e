package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"magictunnel/pkg/logging"
)

const watchSubsystem = "Catalog-Store"

// Store walks a manifest root directory, parses every YAML manifest file
// under it, and keeps a last-known-good contribution per file so a single
// broken file never takes down the whole reload (SPEC_FULL.md §4.1).
type Store struct {
	mu   sync.RWMutex
	root string

	lastGood map[string][]Tool // sourcePath -> last successfully parsed tools
	lastErr  map[string]error  // sourcePath -> most recent parse error, if any

	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	debounce time.Duration
}

// NewStore creates a Store rooted at root. debounce defaults to 300ms if zero.
func NewStore(root string, debounce time.Duration) *Store {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Store{
		root:     root,
		lastGood: make(map[string][]Tool),
		lastErr:  make(map[string]error),
		debounce: debounce,
	}
}

// Load walks the manifest tree once and returns all sources (one per file).
// Parse failures are recorded per-file (see Errors) and that file's
// last-known-good contribution (possibly empty, on first load) is used
// instead of failing the whole Load.
func (s *Store) Load() ([]Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isManifestFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walking manifest root %s: %w", s.root, err)
	}

	sources := make([]Source, 0, len(paths))
	for _, path := range paths {
		sources = append(sources, s.loadFileLocked(path))
	}
	return sources, nil
}

// loadFileLocked parses a single manifest file, updating lastGood/lastErr.
// Caller must hold s.mu.
func (s *Store) loadFileLocked(path string) Source {
	data, err := os.ReadFile(path)
	if err != nil {
		s.lastErr[path] = err
		logging.Warn(watchSubsystem, "failed to read manifest %s, keeping last-known-good: %v", path, err)
		return Source{ID: path, Tools: s.lastGood[path]}
	}

	tools, err := ParseManifest(path, data)
	if err != nil {
		s.lastErr[path] = err
		logging.Warn(watchSubsystem, "failed to parse manifest %s, keeping last-known-good: %v", path, err)
		return Source{ID: path, Tools: s.lastGood[path]}
	}

	delete(s.lastErr, path)
	s.lastGood[path] = tools
	return Source{ID: path, Tools: tools}
}

// Errors returns the current per-file parse errors, keyed by source path.
func (s *Store) Errors() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]error, len(s.lastErr))
	for k, v := range s.lastErr {
		out[k] = v
	}
	return out
}

// Watch starts watching the manifest tree for create/write/rename/remove
// events and invokes cb (typically "reload and republish") on every
// settled batch of changes, debounced by s.debounce. Watch returns once
// the initial watcher is installed; the watch loop runs in a goroutine
// until Stop is called.
func (s *Store) Watch(cb func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating manifest watcher: %w", err)
	}

	if err := addWatchesRecursive(watcher, s.root); err != nil {
		watcher.Close()
		return fmt.Errorf("watching manifest root %s: %w", s.root, err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	go s.watchLoop(watcher, stopCh, cb)
	logging.Info(watchSubsystem, "watching %s for manifest changes", s.root)
	return nil
}

func (s *Store) watchLoop(watcher *fsnotify.Watcher, stopCh chan struct{}, cb func()) {
	var timer *time.Timer
	var pendingC <-chan time.Time

	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isManifestFile(event.Name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			pendingC = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error(watchSubsystem, err, "manifest watcher error")

		case <-pendingC:
			pendingC = nil
			cb()
		}
	}
}

// Stop halts the watch loop and releases the underlying fsnotify watcher.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}

func addWatchesRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return os.MkdirAll(root, 0755)
			}
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func isManifestFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
