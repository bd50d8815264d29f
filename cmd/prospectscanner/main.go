// prospectscanner harvests posts from community partitions, scores them
// against a service profile and reports qualified prospects.
//
// Usage:
//
//	prospectscanner run drone_services
//	prospectscanner serve
//	prospectscanner exclusions add t3_abc t3_def
//	prospectscanner profiles validate ./profiles.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/The-Juice-Real/redgenv2/internal/config"
)

var version = "dev"

type rootOptions struct {
	configPath string
	output     string
}

func (o *rootOptions) loadConfig() config.Config {
	if o.configPath != "" {
		return config.LoadFrom(o.configPath)
	}
	return config.Load()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "prospectscanner",
		Short: "Find and qualify service prospects in community posts",
		Long: `prospectscanner searches the partitions of a service profile, scores every
post locally, drops already-processed ones and spends a small enrichment
budget on the best candidates.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (defaults to $PROSPECT_SCANNER_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json")

	rootCmd.AddCommand(runCmd(opts))
	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(exclusionsCmd(opts))
	rootCmd.AddCommand(profilesCmd(opts))

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
