// Command dompetctl is the operator tool: schema migrations, the insight
// timeline and on-demand insights.
package main

import (
	"context"
	"fmt"
	"os"

	_ "time/tzdata"

	"github.com/spf13/cobra"

	"dompet/internal/backend"
	"dompet/internal/cli"
	"dompet/internal/config"
	"dompet/internal/log"
)

const appName = "dompetctl"

// Set with -ldflags "-X main.version=...".
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Operate a dompet installation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		migrateCmd(),
		timelineCmd(),
		insightCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, version, buildTime)
			},
		},
	)
	return cmd
}

// setup loads the configuration and logs to stderr so stdout stays clean
// for command output.
func setup() (*config.Config, *log.Logger, error) {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, cli.SetupLogger(cfg, os.Stderr, log.ComponentApp), nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (backend.Backend, func(), error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s backend: %w", cfg.DataBackend, err)
	}
	cleanup := func() {
		if result.Cleanup == nil {
			return
		}
		if err := result.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", "error", err)
		}
	}
	return result.Backend, cleanup, nil
}

func insightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insight",
		Short: "Generate and store an insight for today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()

			b, cleanup, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			created, err := b.CreateAIResponse(ctx)
			if err != nil {
				return fmt.Errorf("create insight: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), created.Message)
			return nil
		},
	}
}
