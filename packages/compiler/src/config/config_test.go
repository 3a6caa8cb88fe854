package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ngc-bind/packages/compiler/src/config"
	"ngc-bind/packages/compiler/src/ml_parser"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewConfig(t *testing.T) {
	t.Run("should carry defaults", func(t *testing.T) {
		got := config.NewConfig()
		want := &config.Config{
			Compiler: config.CompilerConfig{
				TokenizeExpansionForms: true,
				MaxExpansionDepth:      ml_parser.DefaultMaxExpansionDepth,
				NormalizeUnicode:       true,
			},
			Output: config.OutputConfig{
				Color:          config.ColorAuto,
				MaxDiagnostics: 100,
				CacheDir:       ".ngc-bind-cache",
			},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should apply options in order", func(t *testing.T) {
		got := config.NewConfig(config.WithJobs(2), config.WithJobs(4), config.WithColor(config.ColorOff), config.WithNoCache(true))
		if got.Output.Jobs != 4 || got.Output.Color != config.ColorOff || !got.Output.NoCache {
			t.Errorf("Output = %+v", got.Output)
		}
	})

	t.Run("should fall back to default interpolation markers", func(t *testing.T) {
		cfg := config.NewConfig()
		if diff := cmp.Diff(ml_parser.DefaultInterpolationConfig, cfg.InterpolationConfig()); diff != "" {
			t.Errorf("interpolation mismatch (-want +got):\n%s", diff)
		}
		cfg.Compiler.Interpolation = []string{"[[", "]]"}
		if got := cfg.InterpolationConfig(); got.Start != "[[" || got.End != "]]" {
			t.Errorf("InterpolationConfig() = %+v", got)
		}
	})

	t.Run("should change the fingerprint with the settings", func(t *testing.T) {
		a := config.NewConfig()
		b := config.NewConfig(config.WithPreserveWhitespaces(true))
		if a.Fingerprint() == b.Fingerprint() {
			t.Errorf("fingerprints should differ: %q", a.Fingerprint())
		}
		if a.Fingerprint() != config.NewConfig().Fingerprint() {
			t.Error("fingerprint should be stable")
		}
	})

	t.Run("should not change the fingerprint with output settings", func(t *testing.T) {
		a := config.NewConfig()
		b := config.NewConfig(config.WithJobs(8), config.WithMaxDiagnostics(3))
		if a.Fingerprint() != b.Fingerprint() {
			t.Errorf("fingerprints differ: %q vs %q", a.Fingerprint(), b.Fingerprint())
		}
	})
}

func TestParseColorMode(t *testing.T) {
	for _, s := range []string{"auto", "on", "off"} {
		if got, err := config.ParseColorMode(s); err != nil || string(got) != s {
			t.Errorf("ParseColorMode(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := config.ParseColorMode("always"); err == nil {
		t.Error("expected an error for always")
	}
}

func TestLoad(t *testing.T) {
	t.Run("should read every section", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, config.FileName, `
[compiler]
tokenize_expansion_forms = false
collect_comment_nodes = true
preserve_whitespaces = true
max_expansion_depth = 8
normalize_unicode = false
interpolation = ["[[", "]]"]

[directives]
database = "directives.yaml"

[output]
color = "off"
max_diagnostics = 5
cache_dir = "cache"
jobs = 3
`)
		got, err := config.Load(path)
		if err != nil {
			t.Fatal(err)
		}
		want := &config.Config{
			Compiler: config.CompilerConfig{
				CollectCommentNodes: true,
				PreserveWhitespaces: true,
				MaxExpansionDepth:   8,
				Interpolation:       []string{"[[", "]]"},
			},
			Directives: config.DirectivesConfig{Database: "directives.yaml"},
			Output: config.OutputConfig{
				Color:          config.ColorOff,
				MaxDiagnostics: 5,
				CacheDir:       "cache",
				Jobs:           3,
			},
			Path: path,
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
		if got.Resolve("directives.yaml") != filepath.Join(dir, "directives.yaml") {
			t.Errorf("Resolve() = %q", got.Resolve("directives.yaml"))
		}
		if len(got.ParseOptions(nil)) != 5 {
			t.Errorf("ParseOptions() returned %d options, want 5", len(got.ParseOptions(nil)))
		}
	})

	t.Run("should keep defaults for missing keys", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), config.FileName, "[output]\njobs = 2\n")
		got, err := config.Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Compiler.TokenizeExpansionForms || got.Output.MaxDiagnostics != 100 || got.Output.Jobs != 2 {
			t.Errorf("config = %+v", got)
		}
	})

	errorCases := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[compiler\n", "failed to parse TOML"},
		{"unknown key", "[compiler]\nfoo = 1\n", "unknown keys: compiler.foo"},
		{"depth", "[compiler]\nmax_expansion_depth = 0\n", "max_expansion_depth must be positive"},
		{"short interpolation", "[compiler]\ninterpolation = [\"[[\"]\n", "expected 'interpolation' to be an array"},
		{"unusable interpolation", "[compiler]\ninterpolation = [\"<\", \">\"]\n", "contains unusable interpolation symbol"},
		{"database", "[directives]\ndatabase = \" \"\n", "[directives].database is empty"},
		{"color", "[output]\ncolor = \"always\"\n", "[output].color: invalid color mode"},
		{"max diagnostics", "[output]\nmax_diagnostics = -1\n", "max_diagnostics must not be negative"},
		{"jobs", "[output]\njobs = -2\n", "jobs must not be negative"},
	}
	for _, tc := range errorCases {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), config.FileName, tc.content)
			_, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tc.want)
			}
			if err != nil && !strings.HasPrefix(err.Error(), path) {
				t.Errorf("error %q should start with the file path", err)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	t.Run("should find the project file in a parent directory", func(t *testing.T) {
		root := t.TempDir()
		path := writeFile(t, root, config.FileName, "[output]\nmax_diagnostics = 7\n")
		nested := filepath.Join(root, "src", "app")
		if err := os.MkdirAll(nested, 0o755); err != nil {
			t.Fatal(err)
		}
		found, ok, err := config.Find(nested)
		if err != nil || !ok || found != path {
			t.Fatalf("Find() = %q, %t, %v", found, ok, err)
		}
		cfg, err := config.Discover(nested)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Output.MaxDiagnostics != 7 || cfg.Root() != root {
			t.Errorf("config = %+v, root %q", cfg.Output, cfg.Root())
		}
	})

	t.Run("should return defaults without a project file", func(t *testing.T) {
		dir := t.TempDir()
		if _, ok, _ := config.Find(dir); ok {
			t.Skip("a project file exists above the temp dir")
		}
		cfg, err := config.Discover(dir)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Path != "" || cfg.Root() != "." || cfg.Resolve("x") != "x" {
			t.Errorf("config = %+v", cfg)
		}
	})
}
