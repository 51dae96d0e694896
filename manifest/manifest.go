// Package manifest handles ringtail.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a ringtail.toml configuration.
type Manifest struct {
	VM VMConfig `toml:"vm"`
	GC GCConfig `toml:"gc"`

	// Dir is the directory containing the ringtail.toml file (set at load time).
	Dir string `toml:"-"`
}

// VMConfig configures execution.
type VMConfig struct {
	// Trace prints the value stack and each instruction during execution,
	// as if the interpreter were run with -d.
	Trace bool `toml:"trace"`
}

// GCConfig configures the collector.
type GCConfig struct {
	// Floor is the minimum collection threshold in live objects.
	// Zero keeps the interpreter default.
	Floor int `toml:"floor"`

	// Stress collects on every allocation. For debugging only.
	Stress bool `toml:"stress"`
}

// Load parses a ringtail.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "ringtail.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a ringtail.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "ringtail.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}
