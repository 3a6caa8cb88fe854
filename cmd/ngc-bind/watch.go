package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ngc-bind/packages/compiler/src/diagfmt"
	"ngc-bind/packages/compiler/src/driver"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [flags] [path...]",
		Short: "Check templates and re-check them when they change",
		Long: `Watch runs check once, then watches the given directories and re-checks
every template that changes. It stops on interrupt.`,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = []string{s.cfg.Root()}
	}

	dirs := make([]string, 0, len(args))
	for _, a := range args {
		info, err := os.Stat(a)
		if err != nil {
			return fmt.Errorf("failed to stat %q: %w", a, err)
		}
		if info.IsDir() {
			dirs = append(dirs, a)
		} else {
			dirs = append(dirs, filepath.Dir(a))
		}
	}

	out := cmd.OutOrStdout()
	check := func(ctx context.Context, files []driver.File) error {
		stats, err := runCheck(ctx, s, out, files)
		if err != nil {
			return err
		}
		return diagfmt.Summary(out, stats, diagfmt.SummaryOpts{Color: s.color})
	}

	files, err := driver.Discover(args...)
	if err != nil {
		return err
	}
	if err := check(cmd.Context(), files); err != nil {
		return err
	}

	err = driver.Watch(cmd.Context(), dirs, s.logger, func(ctx context.Context, changed []string) error {
		var existing []string
		for _, p := range changed {
			if _, err := os.Stat(p); err == nil {
				existing = append(existing, p)
			}
		}
		if len(existing) == 0 {
			return nil
		}
		files, err := driver.Discover(existing...)
		if err != nil {
			s.logger.Warn("failed to discover changed templates", "err", err)
			return nil
		}
		fmt.Fprintf(out, "\n%d %s changed\n", len(existing), diagfmt.Plural(len(existing), "file"))
		return check(ctx, files)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
