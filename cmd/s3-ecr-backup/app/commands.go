// Package app provides the command-line entry points for the backup job.
package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/versions"
)

// NewRootCmd creates the root command for the backup job.
func NewRootCmd(logger *zap.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "s3-ecr-backup",
		DisableAutoGenTag: true,
		Short:             "Back up S3 objects into an ECR repository",
		Long: `s3-ecr-backup repackages S3 objects as minimal single-layer OCI images
and publishes them to an ECR repository, tagged by content digest. Runs are
idempotent: re-publishing unchanged objects creates no duplicate registry
content.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newSyncCmd(logger))
	rootCmd.AddCommand(newSweepCmd(logger))
	rootCmd.AddCommand(newVersionCmd(logger))

	return rootCmd
}

func newVersionCmd(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				logger.Error("failed to read format flag", zap.Error(err))
				return
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					logger.Error("failed to format version info", zap.Error(err))
					return
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(output))
			} else {
				logger.Info("s3-ecr-backup version",
					zap.String("version", info.Version),
					zap.String("commit", info.Commit),
					zap.String("built", info.BuildDate),
					zap.String("go", info.GoVersion),
					zap.String("platform", info.Platform))
			}
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
