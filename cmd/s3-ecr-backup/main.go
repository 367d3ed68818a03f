// Package main is the entry point for the S3-to-ECR backup job.
package main

import (
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gheorghiostapenco/aws-s3-to-ecr-backup/cmd/s3-ecr-backup/app"
	"github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/config"
)

// getLogLevel parses the S3_ECR_BACKUP_LOG_LEVEL environment variable.
// Falls back to LOG_LEVEL, then to info.
func getLogLevel() zapcore.Level {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}

	switch strings.ToLower(levelStr) {
	case "debug":
		return zapcore.DebugLevel
	case "info", "":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func main() {
	// Structured JSON logging on stderr; stdout stays clean for the run
	// report and commands that output data (e.g. version --format json).
	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(getLogLevel())
	logCfg.OutputPaths = []string{"stderr"}

	logger, err := logCfg.Build()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := app.NewRootCmd(logger).Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}
