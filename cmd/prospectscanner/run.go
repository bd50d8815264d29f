package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/The-Juice-Real/redgenv2/internal/app"
	"github.com/The-Juice-Real/redgenv2/internal/logging"
)

func runCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "run <service-type>",
		Short: "Run one qualification pass for a service type",
		Long: `Run harvests every partition of the service profile once, prints the
ranked prospects with the run statistics and stores qualified ones.
Interrupting the run returns whatever was scored so far.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.loadConfig()
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Run(ctx, args[0])
			if err != nil {
				return err
			}
			return printRun(cmd.OutOrStdout(), opts.output, result, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum prospects to print (0 for all)")
	return cmd
}

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on an interval and expose Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.loadConfig()
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			logger.Info("serving",
				"interval", cfg.Scheduler.Interval,
				"service_types", cfg.Scheduler.ServiceTypes,
				"metrics", cfg.Metrics.Addr+cfg.Metrics.Path)
			return application.Serve(ctx)
		},
	}
}
