package registry

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"go.uber.org/zap"
)

// batchDeleteMax is the largest number of image identifiers accepted by a
// single batch-delete call.
const batchDeleteMax = 100

// Failure codes for sweep operations that failed wholesale rather than
// per image.
const (
	sweepFailureList   = "ListUntaggedFailed"
	sweepFailureDelete = "BatchDeleteFailed"
)

// SweepFailure describes one image (or one whole call) that could not be
// cleaned up. Digests that fail to delete stay untagged and are retried on
// the next sweep.
type SweepFailure struct {
	ImageDigest string `json:"imageDigest,omitempty"`
	Code        string `json:"code"`
	Reason      string `json:"reason"`
}

// SweepResult aggregates the outcome of one reconciliation sweep.
type SweepResult struct {
	Deleted  int            `json:"deleted"`
	Failures []SweepFailure `json:"failures,omitempty"`
}

// Sweeper removes untagged images left behind by superseded manifests or
// interrupted publishes. Sweeping is best-effort housekeeping: it reports
// failures but never escalates them.
type Sweeper struct {
	client     ECRAPI
	repository string
	logger     *zap.Logger
}

// NewSweeper creates a reconciliation sweeper for the given repository.
func NewSweeper(client ECRAPI, repository string, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		client:     client,
		repository: repository,
		logger:     logger,
	}
}

// SweepUntagged lists all untagged images in the repository and deletes them
// in batches. The result is always non-nil; a sweep can never abort the run
// that triggered it.
func (s *Sweeper) SweepUntagged(ctx context.Context) *SweepResult {
	result := &SweepResult{}

	var ids []ecrtypes.ImageIdentifier

	paginator := ecr.NewDescribeImagesPaginator(s.client, &ecr.DescribeImagesInput{
		RepositoryName: aws.String(s.repository),
		Filter: &ecrtypes.DescribeImagesFilter{
			TagStatus: ecrtypes.TagStatusUntagged,
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			s.logger.Error("failed to list untagged images",
				zap.String("repository", s.repository),
				zap.Error(err))
			result.Failures = append(result.Failures, SweepFailure{
				Code:   sweepFailureList,
				Reason: err.Error(),
			})
			return result
		}
		for _, detail := range page.ImageDetails {
			if detail.ImageDigest == nil {
				continue
			}
			ids = append(ids, ecrtypes.ImageIdentifier{ImageDigest: detail.ImageDigest})
		}
	}

	if len(ids) == 0 {
		s.logger.Debug("no untagged images found", zap.String("repository", s.repository))
		return result
	}

	for start := 0; start < len(ids); start += batchDeleteMax {
		end := start + batchDeleteMax
		if end > len(ids) {
			end = len(ids)
		}

		out, err := s.client.BatchDeleteImage(ctx, &ecr.BatchDeleteImageInput{
			RepositoryName: aws.String(s.repository),
			ImageIds:       ids[start:end],
		})
		if err != nil {
			s.logger.Error("batch delete failed",
				zap.String("repository", s.repository),
				zap.Int("batchSize", end-start),
				zap.Error(err))
			result.Failures = append(result.Failures, SweepFailure{
				Code:   sweepFailureDelete,
				Reason: err.Error(),
			})
			continue
		}

		result.Deleted += len(out.ImageIds)
		for _, f := range out.Failures {
			failure := SweepFailure{
				Code:   string(f.FailureCode),
				Reason: aws.ToString(f.FailureReason),
			}
			if f.ImageId != nil {
				failure.ImageDigest = aws.ToString(f.ImageId.ImageDigest)
			}
			result.Failures = append(result.Failures, failure)
		}
	}

	s.logger.Info("swept untagged images",
		zap.String("repository", s.repository),
		zap.Int("deleted", result.Deleted),
		zap.Int("failures", len(result.Failures)))

	return result
}
