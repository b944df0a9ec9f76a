// Package manifest handles ferrite.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/ferrite-lang/ferrite/pkg/bytecode"
)

// Manifest represents a ferrite.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	VM      VMConfig    `toml:"vm"`
	Cache   CacheConfig `toml:"cache"`

	// Dir is the directory containing the ferrite.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Entry   string `toml:"entry"` // entry function name
}

// VMConfig carries execution limits.
type VMConfig struct {
	MaxCallDepth int   `toml:"max-call-depth"`
	StepBudget   int64 `toml:"step-budget"` // 0 means unlimited
}

// CacheConfig configures the compiled-program cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used when no ferrite.toml exists.
func Default() *Manifest {
	return &Manifest{
		Project: Project{Entry: "main"},
		VM:      VMConfig{MaxCallDepth: bytecode.DefaultMaxDepth},
		Cache:   CacheConfig{Enabled: true, Path: ".ferrite/cache.db"},
	}
}

// Load parses a ferrite.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "ferrite.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if m.VM.MaxCallDepth < 1 {
		return nil, fmt.Errorf("%s: vm.max-call-depth must be at least 1", path)
	}
	if m.VM.StepBudget < 0 {
		return nil, fmt.Errorf("%s: vm.step-budget cannot be negative", path)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a ferrite.toml file, then loads
// and returns the manifest. Returns the defaults if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "ferrite.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			m := Default()
			m.Dir, _ = filepath.Abs(startDir)
			return m, nil
		}
		dir = parent
	}
}

// CachePath returns the absolute path of the cache database.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// VMOptions translates the configured limits into VM options.
func (m *Manifest) VMOptions() []bytecode.Option {
	opts := []bytecode.Option{bytecode.WithMaxDepth(m.VM.MaxCallDepth)}
	if m.VM.StepBudget > 0 {
		opts = append(opts, bytecode.WithStepBudget(m.VM.StepBudget))
	}
	return opts
}
