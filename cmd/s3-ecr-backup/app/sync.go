package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	backup "github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/app"
	"github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/config"
)

func newSyncCmd(logger *zap.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a full backup pass",
		Long: `Sync lists the configured S3 prefix, publishes each object as a
single-layer OCI image tagged by content digest, and sweeps untagged images
left behind by superseded content. The run report is written to stdout as
JSON.`,
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

			report, err := application.RunSync(ctx)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			output, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))

			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration file")

	return cmd
}
