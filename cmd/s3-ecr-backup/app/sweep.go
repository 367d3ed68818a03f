package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	backup "github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/app"
	"github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/config"
)

func newSweepCmd(logger *zap.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete untagged images from the repository",
		Long: `Sweep removes untagged images from the configured ECR repository
without running a backup pass. The sweep result is written to stdout as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			opts := []config.Option{config.WithEnvironment()}
			if configPath != "" {
				opts = append(opts, config.WithConfigPath(configPath))
			}
			cfg, err := config.LoadConfig(opts...)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			application, err := backup.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}

			result := application.RunSweep(ctx)

			output, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))

			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration file")

	return cmd
}
