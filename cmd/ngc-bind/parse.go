package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"ngc-bind/packages/compiler/src/diagfmt"
	"ngc-bind/packages/compiler/src/driver"
	"ngc-bind/packages/compiler/src/ml_parser"
)

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [flags] file",
		Short: "Print the markup tree of a template",
		Long: `Parse tokenizes a template and prints the generic markup tree, before any
Angular semantics are applied. A .ts file prints each inline template.`,
		Args: cobra.ExactArgs(1),
		RunE: runParse,
	}
	cmd.Flags().Bool("no-blocks", false, "treat @ as text instead of starting a block")
	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	noBlocks, err := cmd.Flags().GetBool("no-blocks")
	if err != nil {
		return fmt.Errorf("failed to get no-blocks flag: %w", err)
	}

	files, err := driver.Discover(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := false
	for _, f := range files {
		source, err := f.Read()
		if err != nil {
			return err
		}
		if s.cfg.Compiler.NormalizeUnicode {
			source = norm.NFC.String(source)
		}

		tokenize := ml_parser.DefaultTokenizeOptions()
		tokenize.TokenizeExpansionForms = s.cfg.Compiler.TokenizeExpansionForms
		tokenize.TokenizeBlocks = !noBlocks
		tokenize.Interpolation = s.cfg.InterpolationConfig()
		result := ml_parser.NewHtmlParser().Parse(source, f.URL(), ml_parser.ParseOptions{
			Tokenize:    tokenize,
			TreeBuilder: ml_parser.TreeBuilderOptions{MaxExpansionDepth: s.cfg.Compiler.MaxExpansionDepth},
		})

		if len(files) > 1 {
			fmt.Fprintf(out, "== %s\n", f.URL())
		}
		printHtmlTree(out, result.RootNodes)
		if len(result.Errors) > 0 {
			if _, err := diagfmt.Pretty(cmd.ErrOrStderr(), result.Errors, s.prettyOpts("")); err != nil {
				return err
			}
		}
		failed = failed || len(result.Errors) > 0
	}
	if failed {
		return errCheckFailed
	}
	return nil
}
