// Package projects tracks the vocabulary of active project codes.
//
// Contact tags matching a project code (e.g. "empathy-ledger") are treated as
// project links rather than free-form tags. The vocabulary lives in a YAML
// file and is loaded through an injected Loader so the registry can be
// refreshed explicitly instead of living in a lazily-initialized global.
package projects

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader returns the current set of active project codes.
type Loader func() ([]string, error)

// Registry is a concurrency-safe view over the active project vocabulary.
type Registry struct {
	load Loader

	mu    sync.RWMutex
	codes map[string]struct{}
}

// NewRegistry constructs a registry and performs the initial load.
func NewRegistry(load Loader) (*Registry, error) {
	r := &Registry{load: load}
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh re-runs the loader and swaps the vocabulary atomically. On loader
// failure the previous vocabulary is kept.
func (r *Registry) Refresh() error {
	codes, err := r.load()
	if err != nil {
		return fmt.Errorf("load project codes: %w", err)
	}

	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c != "" {
			set[c] = struct{}{}
		}
	}

	r.mu.Lock()
	r.codes = set
	r.mu.Unlock()
	return nil
}

// Contains reports whether code is an active project.
func (r *Registry) Contains(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.codes[code]
	return ok
}

// All returns the active codes, sorted.
func (r *Registry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.codes))
	for c := range r.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// projectsFile is the on-disk vocabulary shape.
type projectsFile struct {
	Projects []string `yaml:"projects"`
}

// FileLoader returns a Loader reading the YAML vocabulary file at path.
func FileLoader(path string) Loader {
	return func() ([]string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read projects file: %w", err)
		}
		var pf projectsFile
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("parse projects file: %w", err)
		}
		return pf.Projects, nil
	}
}

// StaticLoader returns a Loader over a fixed code list. Used when no
// vocabulary file is configured, and in tests.
func StaticLoader(codes ...string) Loader {
	return func() ([]string, error) {
		return codes, nil
	}
}

// DefaultCodes is the built-in vocabulary used when no file is configured.
var DefaultCodes = []string{"empathy-ledger", "justicehub", "the-harvest", "act-farm", "goods"}
