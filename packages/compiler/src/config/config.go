package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"ngc-bind/packages/compiler/src/ml_parser"
	"ngc-bind/packages/compiler/src/render3/view"
)

// ColorMode selects when diagnostics are colored.
type ColorMode string

const (
	ColorAuto ColorMode = "auto"
	ColorOn   ColorMode = "on"
	ColorOff  ColorMode = "off"
)

// ParseColorMode accepts auto, on and off.
func ParseColorMode(s string) (ColorMode, error) {
	switch ColorMode(s) {
	case ColorAuto, ColorOn, ColorOff:
		return ColorMode(s), nil
	}
	return "", fmt.Errorf("invalid color mode %q (want auto, on or off)", s)
}

// Config is the project configuration. The zero value is not useful; start from
// NewConfig or Load.
type Config struct {
	Compiler   CompilerConfig   `toml:"compiler"`
	Directives DirectivesConfig `toml:"directives"`
	Output     OutputConfig     `toml:"output"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

// CompilerConfig holds the template parsing settings.
type CompilerConfig struct {
	TokenizeExpansionForms bool `toml:"tokenize_expansion_forms"`
	CollectCommentNodes    bool `toml:"collect_comment_nodes"`
	PreserveWhitespaces    bool `toml:"preserve_whitespaces"`
	MaxExpansionDepth      int  `toml:"max_expansion_depth"`
	NormalizeUnicode       bool `toml:"normalize_unicode"`
	// Interpolation is the start and end marker pair, e.g. ["[[", "]]"].
	Interpolation []string `toml:"interpolation"`
}

type DirectivesConfig struct {
	Database string `toml:"database"`
}

type OutputConfig struct {
	Color          ColorMode `toml:"color"`
	MaxDiagnostics int       `toml:"max_diagnostics"`
	CacheDir       string    `toml:"cache_dir"`
	Jobs           int       `toml:"jobs"`
	NoCache        bool      `toml:"no_cache"`
}

// NewConfig creates a Config with defaults, then applies opts.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Compiler: CompilerConfig{
			TokenizeExpansionForms: true,
			PreserveWhitespaces:    PreserveWhitespacesDefault(nil, false),
			MaxExpansionDepth:      ml_parser.DefaultMaxExpansionDepth,
			NormalizeUnicode:       true,
		},
		Output: OutputConfig{
			Color:          ColorAuto,
			MaxDiagnostics: 100,
			CacheDir:       ".ngc-bind-cache",
		},
	}
	cfg.Apply(opts...)
	return cfg
}

// Option modifies a Config. Command line flags are applied as options on top of the
// file values.
type Option func(*Config)

// Apply runs opts in order.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func WithPreserveWhitespaces(preserve bool) Option {
	return func(c *Config) { c.Compiler.PreserveWhitespaces = preserve }
}

func WithCollectCommentNodes(collect bool) Option {
	return func(c *Config) { c.Compiler.CollectCommentNodes = collect }
}

func WithDirectiveDatabase(path string) Option {
	return func(c *Config) { c.Directives.Database = path }
}

func WithColor(mode ColorMode) Option {
	return func(c *Config) { c.Output.Color = mode }
}

func WithMaxDiagnostics(n int) Option {
	return func(c *Config) { c.Output.MaxDiagnostics = n }
}

// WithJobs sets the number of templates compiled at once. Zero means GOMAXPROCS.
func WithJobs(n int) Option {
	return func(c *Config) { c.Output.Jobs = n }
}

func WithNoCache(noCache bool) Option {
	return func(c *Config) { c.Output.NoCache = noCache }
}

// PreserveWhitespacesDefault returns the default value for preserveWhitespaces
func PreserveWhitespacesDefault(preserveWhitespacesOption *bool, defaultSetting bool) bool {
	if preserveWhitespacesOption == nil {
		return defaultSetting
	}
	return *preserveWhitespacesOption
}

// Root is the directory relative paths in the configuration are resolved against.
func (c *Config) Root() string {
	if c.Path == "" {
		return "."
	}
	return filepath.Dir(c.Path)
}

// Resolve makes p relative to Root unless it is absolute or empty.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root(), p)
}

// InterpolationConfig returns the configured markers, or the default pair.
func (c *Config) InterpolationConfig() ml_parser.InterpolationConfig {
	if len(c.Compiler.Interpolation) != 2 {
		return ml_parser.DefaultInterpolationConfig
	}
	return ml_parser.InterpolationConfig{Start: c.Compiler.Interpolation[0], End: c.Compiler.Interpolation[1]}
}

// ParseOptions converts the compiler section into template parser options.
func (c *Config) ParseOptions(logger *slog.Logger) []view.ParseTemplateOption {
	opts := []view.ParseTemplateOption{
		view.WithTokenizeExpansionForms(c.Compiler.TokenizeExpansionForms),
		view.WithCollectCommentNodes(c.Compiler.CollectCommentNodes),
		view.WithPreserveWhitespaces(c.Compiler.PreserveWhitespaces),
		view.WithMaxExpansionDepth(c.Compiler.MaxExpansionDepth),
		view.WithInterpolation(c.InterpolationConfig()),
	}
	if logger != nil {
		opts = append(opts, view.WithLogger(logger))
	}
	return opts
}

// Fingerprint identifies the settings that change what a template compiles to. Cache
// entries are keyed by it.
func (c *Config) Fingerprint() string {
	ic := c.InterpolationConfig()
	return fmt.Sprintf("icu=%t;comments=%t;ws=%t;depth=%d;nfc=%t;interp=%s,%s;db=%s",
		c.Compiler.TokenizeExpansionForms,
		c.Compiler.CollectCommentNodes,
		c.Compiler.PreserveWhitespaces,
		c.Compiler.MaxExpansionDepth,
		c.Compiler.NormalizeUnicode,
		ic.Start, ic.End,
		c.Directives.Database)
}
