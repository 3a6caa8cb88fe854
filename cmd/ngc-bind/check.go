package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ngc-bind/packages/compiler/src/diagfmt"
	"ngc-bind/packages/compiler/src/driver"
	"ngc-bind/packages/compiler/src/util"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [flags] [path...]",
		Short: "Parse and bind every template under the given paths",
		Long: `Check finds .html templates and inline templates of .ts components, compiles
them in parallel and reports every diagnostic. It exits non-zero when a template has
an error.`,
		RunE: runCheckCmd,
	}
	cmd.Flags().Bool("summary", true, "print a summary box after the diagnostics")
	return cmd
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	showSummary, err := cmd.Flags().GetBool("summary")
	if err != nil {
		return fmt.Errorf("failed to get summary flag: %w", err)
	}
	if len(args) == 0 {
		args = []string{s.cfg.Root()}
	}

	files, err := driver.Discover(args...)
	if err != nil {
		return err
	}
	stats, err := runCheck(cmd.Context(), s, cmd.OutOrStdout(), files)
	if err != nil {
		return err
	}
	if showSummary {
		if err := diagfmt.Summary(cmd.OutOrStdout(), stats, diagfmt.SummaryOpts{Color: s.color}); err != nil {
			return err
		}
	}
	if stats.Failed() {
		return errCheckFailed
	}
	return nil
}

// runCheck compiles files and prints their diagnostics to w.
func runCheck(ctx context.Context, s *settings, w io.Writer, files []driver.File) (diagfmt.Stats, error) {
	start := time.Now()
	results, err := driver.Compile(ctx, files, s.compileOptions())
	if err != nil {
		return diagfmt.Stats{}, err
	}

	baseDir, _ := os.Getwd()
	stats := diagfmt.Stats{Files: len(results)}
	var diags []*util.ParseError
	for _, r := range results {
		if r.Err != nil {
			stats.Aborted++
			if errors.Is(r.Err, driver.ErrTemplateAborted) {
				fmt.Fprintln(w, r.Err)
			} else {
				fmt.Fprintf(w, "%s: %v\n", r.File.URL(), r.Err)
			}
			continue
		}
		if r.Cached {
			stats.Cached++
		}
		for _, d := range r.Diagnostics {
			if d.Level == util.ParseErrorLevelWarning {
				stats.Warnings++
			} else {
				stats.Errors++
			}
		}
		diags = append(diags, r.Diagnostics...)
	}
	if _, err := diagfmt.Pretty(w, diags, s.prettyOpts(baseDir)); err != nil {
		return stats, err
	}
	stats.Duration = time.Since(start)
	s.logger.Info("check finished", "files", stats.Files, "errors", stats.Errors, "cached", stats.Cached)
	return stats, nil
}
