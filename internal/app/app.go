// Package app wires the backup application: AWS clients, pipeline
// components, and the run entry points used by the commands.
package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/config"
	"github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/registry"
	"github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/storage"
	syncpkg "github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/sync"
)

// Option configures the app builder.
type Option func(*appConfig) error

// appConfig carries builder state, including component overrides for tests.
type appConfig struct {
	s3Client  storage.S3API
	ecrClient registry.ECRAPI
}

// WithS3Client overrides the S3 client, primarily for testing.
func WithS3Client(client storage.S3API) Option {
	return func(cfg *appConfig) error {
		if client == nil {
			return fmt.Errorf("s3 client cannot be nil")
		}
		cfg.s3Client = client
		return nil
	}
}

// WithECRClient overrides the ECR client, primarily for testing.
func WithECRClient(client registry.ECRAPI) Option {
	return func(cfg *appConfig) error {
		if client == nil {
			return fmt.Errorf("ecr client cannot be nil")
		}
		cfg.ecrClient = client
		return nil
	}
}

// App holds the wired components for one process. Client handles are
// constructed once and passed to components by reference; there are no
// ambient globals and no state that outlives the process.
type App struct {
	cfg          *config.Config
	orchestrator *syncpkg.Orchestrator
	sweeper      syncpkg.Sweeper
	logger       *zap.Logger
}

// New builds the application from configuration. AWS clients come from the
// SDK default chain unless overridden.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	builder := &appConfig{}
	for _, opt := range opts {
		if err := opt(builder); err != nil {
			return nil, err
		}
	}

	if builder.s3Client == nil || builder.ecrClient == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		if builder.s3Client == nil {
			builder.s3Client = s3.NewFromConfig(awsCfg)
		}
		if builder.ecrClient == nil {
			builder.ecrClient = ecr.NewFromConfig(awsCfg)
		}
	}

	store := storage.NewS3ObjectStore(builder.s3Client, cfg.Bucket, logger)
	tokens := registry.NewTokenSource(builder.ecrClient, logger)
	provisioner := registry.NewProvisioner(builder.ecrClient, logger)
	publisher := registry.NewPublisher(
		builder.ecrClient,
		tokens,
		cfg.Repository,
		logger,
		registry.WithTagLength(cfg.TagLength),
		registry.WithLayerPartSize(cfg.LayerPartSize),
	)
	sweeper := registry.NewSweeper(builder.ecrClient, cfg.Repository, logger)

	return &App{
		cfg:          cfg,
		orchestrator: syncpkg.NewOrchestrator(store, provisioner, publisher, sweeper, cfg.Repository, logger),
		sweeper:      sweeper,
		logger:       logger,
	}, nil
}

// RunSync executes one backup run, retrying the whole run when retries are
// configured. Whole-run retry is safe: tags are content-derived, so a
// repeated run converges instead of duplicating.
func (a *App) RunSync(ctx context.Context) (*syncpkg.Report, error) {
	run := func() (*syncpkg.Report, error) {
		return a.orchestrator.Run(ctx, a.cfg.PrefixFilter)
	}

	retry := a.cfg.Retry
	if retry == nil || retry.MaxAttempts <= 1 {
		return run()
	}

	interval, err := retry.GetInitialInterval()
	if err != nil {
		return nil, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = interval

	attempt := 0
	operation := func() (*syncpkg.Report, error) {
		attempt++
		report, err := run()
		if err != nil {
			a.logger.Warn("backup run failed, may retry",
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return report, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(retry.MaxAttempts)),
	)
}

// RunSweep runs the reconciliation sweep on its own, outside a publish pass.
func (a *App) RunSweep(ctx context.Context) *registry.SweepResult {
	return a.sweeper.SweepUntagged(ctx)
}
