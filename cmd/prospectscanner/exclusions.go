package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/The-Juice-Real/redgenv2/internal/infrastructure/storage"
)

func exclusionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "exclusions",
		Aliases: []string{"exclusion", "excl"},
		Short:   "Manage identifiers skipped by future runs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <item-id>...",
		Short: "Exclude items from future runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.Open(cmd.Context(), opts.loadConfig().Database.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, id := range args {
				if err := store.Add(cmd.Context(), id); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "excluded %d item(s)\n", len(args))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <item-id>...",
		Short: "Allow items to be qualified again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.Open(cmd.Context(), opts.loadConfig().Database.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, id := range args {
				if err := store.Remove(cmd.Context(), id); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d item(s)\n", len(args))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List excluded identifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := storage.Open(cmd.Context(), opts.loadConfig().Database.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.ListExclusions(cmd.Context())
			if err != nil {
				return err
			}
			return printExclusions(cmd.OutOrStdout(), opts.output, entries)
		},
	})

	return cmd
}
