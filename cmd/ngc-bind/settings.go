package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ngc-bind/packages/compiler/src/config"
	"ngc-bind/packages/compiler/src/diagfmt"
	"ngc-bind/packages/compiler/src/driver"
	"ngc-bind/packages/compiler/src/metadata"
	"ngc-bind/packages/compiler/src/render3/view"
)

// settings is everything a command needs after the project file and flags are merged.
type settings struct {
	cfg         *config.Config
	logger      *slog.Logger
	color       bool
	matcher     *view.DirectiveMatcher
	cache       *driver.Cache
	fingerprint string
}

// loadSettings merges the project file, the persistent flags and then extra.
func loadSettings(cmd *cobra.Command, extra ...config.Option) (*settings, error) {
	flags := cmd.Root().PersistentFlags()

	cfgPath, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	var cfg *config.Config
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, err = config.Discover(".")
	}
	if err != nil {
		return nil, err
	}

	if flags.Changed("color") {
		raw, _ := flags.GetString("color")
		mode, err := config.ParseColorMode(raw)
		if err != nil {
			return nil, fmt.Errorf("--color: %w", err)
		}
		cfg.Apply(config.WithColor(mode))
	}
	if flags.Changed("max-diagnostics") {
		n, _ := flags.GetInt("max-diagnostics")
		cfg.Apply(config.WithMaxDiagnostics(n))
	}
	if flags.Changed("jobs") {
		n, _ := flags.GetInt("jobs")
		cfg.Apply(config.WithJobs(n))
	}
	if flags.Changed("no-cache") {
		noCache, _ := flags.GetBool("no-cache")
		cfg.Apply(config.WithNoCache(noCache))
	}
	cfg.Apply(extra...)

	logLevel, _ := flags.GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if cfg.Path != "" {
		logger.Debug("loaded project file", "path", cfg.Path)
	}

	s := &settings{
		cfg:         cfg,
		logger:      logger,
		color:       diagfmt.ColorEnabled(cfg.Output.Color, fileOf(cmd.OutOrStdout())),
		fingerprint: cfg.Fingerprint(),
	}

	if db := cfg.Directives.Database; db != "" {
		path := cfg.Resolve(db)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read directive database: %w", err)
		}
		database, err := metadata.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if s.matcher, err = database.Matcher(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		// Editing the database must invalidate cached diagnostics.
		sum := sha256.Sum256(data)
		s.fingerprint += ";dbsum=" + hex.EncodeToString(sum[:8])
		logger.Debug("loaded directive database", "path", path, "directives", len(database.Directives))
	}

	if !cfg.Output.NoCache {
		if s.cache, err = driver.OpenCache(cfg.Resolve(cfg.Output.CacheDir)); err != nil {
			logger.Warn("diagnostics cache disabled", "err", err)
			s.cache = nil
		}
	}
	return s, nil
}

func (s *settings) compileOptions() driver.Options {
	return driver.Options{
		Jobs:             s.cfg.Output.Jobs,
		NormalizeUnicode: s.cfg.Compiler.NormalizeUnicode,
		ParseOptions:     s.cfg.ParseOptions(s.logger),
		Matcher:          s.matcher,
		Cache:            s.cache,
		Fingerprint:      s.fingerprint,
		Logger:           s.logger,
	}
}

func (s *settings) prettyOpts(baseDir string) diagfmt.PrettyOpts {
	return diagfmt.PrettyOpts{
		Color:   s.color,
		Context: 2,
		BaseDir: baseDir,
		Max:     s.cfg.Output.MaxDiagnostics,
	}
}

func fileOf(w io.Writer) *os.File {
	f, _ := w.(*os.File)
	return f
}
