package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ngc-bind/packages/compiler/src/config"
)

// version is set at link time with -ldflags "-X main.version=...".
var version = "dev"

// errCheckFailed is returned when templates have errors. The diagnostics were already
// printed, so main only sets the exit code.
var errCheckFailed = errors.New("template check failed")

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ngc-bind",
		Short: "Angular template parser and binder",
		Long: `ngc-bind parses Angular templates, matches directives from a directive
database and reports what every reference, variable and expression binds to.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "project file (default: nearest "+config.FileName+")")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.String("log-level", "warn", "log level (debug|info|warn|error)")
	flags.Int("max-diagnostics", 100, "maximum number of diagnostics to show (0 shows all)")
	flags.Int("jobs", 0, "templates compiled in parallel (0 uses every CPU)")
	flags.Bool("no-cache", false, "do not read or write the diagnostics cache")

	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newBindCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	if !errors.Is(err, errCheckFailed) {
		fmt.Fprintln(os.Stderr, "ngc-bind:", err)
	}
	stop()
	os.Exit(1)
}
