// Package registry implements the content-addressed publishing pipeline
// against an ECR repository: repository provisioning, the chunked
// layer-upload protocol, manifest assembly and tagging, and reconciliation
// of untagged images.
package registry

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ecr"
)

// ECRAPI is the subset of the ECR client surface used by this package.
type ECRAPI interface {
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	CreateRepository(ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
	InitiateLayerUpload(ctx context.Context, params *ecr.InitiateLayerUploadInput, optFns ...func(*ecr.Options)) (*ecr.InitiateLayerUploadOutput, error)
	UploadLayerPart(ctx context.Context, params *ecr.UploadLayerPartInput, optFns ...func(*ecr.Options)) (*ecr.UploadLayerPartOutput, error)
	CompleteLayerUpload(ctx context.Context, params *ecr.CompleteLayerUploadInput, optFns ...func(*ecr.Options)) (*ecr.CompleteLayerUploadOutput, error)
	PutImage(ctx context.Context, params *ecr.PutImageInput, optFns ...func(*ecr.Options)) (*ecr.PutImageOutput, error)
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
	BatchDeleteImage(ctx context.Context, params *ecr.BatchDeleteImageInput, optFns ...func(*ecr.Options)) (*ecr.BatchDeleteImageOutput, error)
}

// Publishing protocol step names used in ProtocolError.
const (
	StepAuthorize           = "authorize"
	StepInitiateLayerUpload = "initiate-layer-upload"
	StepUploadLayerPart     = "upload-layer-part"
	StepCompleteLayerUpload = "complete-layer-upload"
	StepPutImage            = "put-image"
)

// ProtocolError reports a failure in one step of the publishing protocol.
// The steps have no independent retry safety; recovery is re-running the
// whole publish from the digest computation.
type ProtocolError struct {
	Step string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("registry protocol step %s failed: %v", e.Step, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
