package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ngc-bind/packages/compiler/src/driver"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the diagnostics cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			dir := s.cfg.Resolve(s.cfg.Output.CacheDir)
			cache := s.cache
			if cache == nil {
				if cache, err = driver.OpenCache(dir); err != nil {
					return err
				}
			}
			if err := cache.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", dir)
			return nil
		},
	}
}
