package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/The-Juice-Real/redgenv2/internal/app"
	"github.com/The-Juice-Real/redgenv2/internal/profile"
)

func profilesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect and validate service profiles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the configured service profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := app.LoadProfiles(opts.loadConfig())
			if err != nil {
				return err
			}
			return printProfiles(cmd.OutOrStdout(), opts.output, catalog)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a profile file (the built-in set when no path is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				catalog *profile.Catalog
				err     error
			)
			if len(args) == 1 {
				catalog, err = profile.LoadFile(args[0])
			} else {
				catalog, err = profile.Default()
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d profile(s) valid\n", len(catalog.Types()))
			return nil
		},
	})

	return cmd
}
