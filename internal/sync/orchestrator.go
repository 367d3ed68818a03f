// Package sync drives one backup run end to end: ensure the repository,
// enumerate source objects, publish each as an image, and sweep untagged
// leftovers.
package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/registry"
	"github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/storage"
)

// Run statuses reported by Run.
const (
	// StatusSuccess means every fetched object was published.
	StatusSuccess = "success"

	// StatusNoObjects means the source listing was empty; a valid terminal
	// outcome, not an error.
	StatusNoObjects = "no_objects"

	// StatusPartialFailure means at least one object failed to publish
	// while the rest of the run completed.
	StatusPartialFailure = "partial_failure"
)

// Stages recorded on per-object failures.
const (
	StageFetch   = "fetch"
	StagePublish = "publish"
)

// Item records one successfully published object.
type Item struct {
	ObjectKey string `json:"object_key"`
	ImageTag  string `json:"image_tag"`
}

// Failure records one object that could not be backed up this run.
type Failure struct {
	ObjectKey string `json:"object_key"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// Report aggregates the outcome of one sync run. It is observational only;
// the registry holds the durable state.
type Report struct {
	Status        string                `json:"status"`
	RepositoryURI string                `json:"repository_uri,omitempty"`
	Items         []Item                `json:"items"`
	Failures      []Failure             `json:"failures,omitempty"`
	Sweep         *registry.SweepResult `json:"sweep,omitempty"`
}

// Provisioner ensures the target repository exists.
type Provisioner interface {
	EnsureRepository(ctx context.Context, name string) (string, error)
}

// Publisher turns raw bytes into a tagged image.
type Publisher interface {
	Publish(ctx context.Context, body []byte) (string, error)
}

// Sweeper removes untagged images, best effort.
type Sweeper interface {
	SweepUntagged(ctx context.Context) *registry.SweepResult
}

// Orchestrator runs the backup state machine. Objects are processed strictly
// sequentially; safety under concurrent invocations relies on the registry's
// own atomicity and the content-derived tags.
type Orchestrator struct {
	store       storage.ObjectStore
	provisioner Provisioner
	publisher   Publisher
	sweeper     Sweeper
	repository  string
	logger      *zap.Logger
}

// NewOrchestrator wires a sync orchestrator from its collaborators.
func NewOrchestrator(
	store storage.ObjectStore,
	provisioner Provisioner,
	publisher Publisher,
	sweeper Sweeper,
	repository string,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:       store,
		provisioner: provisioner,
		publisher:   publisher,
		sweeper:     sweeper,
		repository:  repository,
		logger:      logger,
	}
}

// Run executes one backup pass over all objects under prefix.
//
// Provisioning and listing failures are fatal: without a destination or a
// source listing there is nothing to do. A fetch failure skips that object.
// A publish failure is also recorded and the run continues; the final status
// is partial_failure when any publish failed. The sweep always runs once
// after a non-empty object loop and never fails the run.
func (o *Orchestrator) Run(ctx context.Context, prefix string) (*Report, error) {
	uri, err := o.provisioner.EnsureRepository(ctx, o.repository)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure repository %s: %w", o.repository, err)
	}
	o.logger.Info("repository ready", zap.String("uri", uri))

	keys, err := o.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list source objects: %w", err)
	}

	if len(keys) == 0 {
		o.logger.Info("no objects to process", zap.String("prefix", prefix))
		return &Report{
			Status:        StatusNoObjects,
			RepositoryURI: uri,
			Items:         []Item{},
		}, nil
	}

	report := &Report{
		Status:        StatusSuccess,
		RepositoryURI: uri,
		Items:         []Item{},
	}

	for _, key := range keys {
		o.logger.Info("processing object", zap.String("key", key))

		body, err := o.store.Fetch(ctx, key)
		if err != nil {
			// One bad object must not block backup of the rest.
			o.logger.Error("failed to fetch object, skipping",
				zap.String("key", key), zap.Error(err))
			report.Failures = append(report.Failures, Failure{
				ObjectKey: key,
				Stage:     StageFetch,
				Error:     err.Error(),
			})
			continue
		}

		tag, err := o.publisher.Publish(ctx, body)
		if err != nil {
			o.logger.Error("failed to publish object",
				zap.String("key", key), zap.Error(err))
			report.Failures = append(report.Failures, Failure{
				ObjectKey: key,
				Stage:     StagePublish,
				Error:     err.Error(),
			})
			report.Status = StatusPartialFailure
			continue
		}

		report.Items = append(report.Items, Item{ObjectKey: key, ImageTag: tag})
	}

	report.Sweep = o.sweeper.SweepUntagged(ctx)

	o.logger.Info("backup run completed",
		zap.String("status", report.Status),
		zap.Int("published", len(report.Items)),
		zap.Int("failures", len(report.Failures)))

	return report, nil
}
