package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"ngc-bind/packages/compiler/src/util"
)

// FileName is the project file looked up by Discover.
const FileName = "ngc-bind.toml"

// Find walks up from startDir looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads the project file above startDir, or returns defaults when there is
// none.
func Discover(startDir string) (*Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewConfig(), nil
	}
	return Load(path)
}

// Load reads a project file. Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("compiler", "max_expansion_depth") && cfg.Compiler.MaxExpansionDepth <= 0 {
		return nil, fmt.Errorf("%s: [compiler].max_expansion_depth must be positive", path)
	}
	if meta.IsDefined("compiler", "interpolation") {
		if err := util.AssertInterpolationSymbols("interpolation", cfg.Compiler.Interpolation); err != nil {
			return nil, fmt.Errorf("%s: [compiler]: %w", path, err)
		}
	}
	if meta.IsDefined("directives", "database") && strings.TrimSpace(cfg.Directives.Database) == "" {
		return nil, fmt.Errorf("%s: [directives].database is empty", path)
	}
	if meta.IsDefined("output", "color") {
		if _, err := ParseColorMode(string(cfg.Output.Color)); err != nil {
			return nil, fmt.Errorf("%s: [output].color: %w", path, err)
		}
	}
	if meta.IsDefined("output", "max_diagnostics") && cfg.Output.MaxDiagnostics < 0 {
		return nil, fmt.Errorf("%s: [output].max_diagnostics must not be negative", path)
	}
	if meta.IsDefined("output", "jobs") && cfg.Output.Jobs < 0 {
		return nil, fmt.Errorf("%s: [output].jobs must not be negative", path)
	}

	cfg.Path = path
	return cfg, nil
}
