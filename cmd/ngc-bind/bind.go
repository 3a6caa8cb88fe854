package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"ngc-bind/packages/compiler/src/config"
	"ngc-bind/packages/compiler/src/diagfmt"
	"ngc-bind/packages/compiler/src/driver"
)

func newBindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bind [flags] file",
		Short: "Bind a template and print what it resolves to",
		Long: `Bind parses a template into the template tree, matches directives from the
directive database and prints the directives of every element, the target of every
reference and expression, the pipes in use and the targets of deferred triggers.`,
		Args: cobra.ExactArgs(1),
		RunE: runBind,
	}
	cmd.Flags().Bool("tree", true, "print the template tree before the bindings")
	cmd.Flags().String("directives", "", "directive database, overriding the project file")
	return cmd
}

func runBind(cmd *cobra.Command, args []string) error {
	var extra []config.Option
	if cmd.Flags().Changed("directives") {
		db, _ := cmd.Flags().GetString("directives")
		abs, err := filepath.Abs(db)
		if err != nil {
			return fmt.Errorf("failed to resolve directive database: %w", err)
		}
		extra = append(extra, config.WithDirectiveDatabase(abs))
	}
	s, err := loadSettings(cmd, extra...)
	if err != nil {
		return err
	}
	showTree, err := cmd.Flags().GetBool("tree")
	if err != nil {
		return fmt.Errorf("failed to get tree flag: %w", err)
	}

	files, err := driver.Discover(args[0])
	if err != nil {
		return err
	}

	opts := s.compileOptions()
	// Bindings are never cached.
	opts.Cache = nil

	out := cmd.OutOrStdout()
	failed := false
	for _, f := range files {
		res := driver.CompileFile(f, opts)
		if res.Err != nil {
			return res.Err
		}
		if len(files) > 1 {
			fmt.Fprintf(out, "== %s\n", f.URL())
		}
		if showTree {
			printR3Tree(out, res.Parsed.Nodes)
			fmt.Fprintln(out)
		}
		printBindings(out, res.Source, res.Parsed.Nodes, res.Bound)

		if len(res.Diagnostics) > 0 {
			if _, err := diagfmt.Pretty(cmd.ErrOrStderr(), res.Diagnostics, s.prettyOpts("")); err != nil {
				return err
			}
		}
		failed = failed || res.Failed()
	}
	if failed {
		return errCheckFailed
	}
	return nil
}
