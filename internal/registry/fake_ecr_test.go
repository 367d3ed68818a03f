package registry

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
)

// fakeECR implements ECRAPI with overridable behavior per test. Methods
// without an override fail loudly so tests only exercise what they stub.
type fakeECR struct {
	describeRepositories func(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	createRepository     func(ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	getAuthorization     func(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
	initiateLayerUpload  func(ctx context.Context, params *ecr.InitiateLayerUploadInput, optFns ...func(*ecr.Options)) (*ecr.InitiateLayerUploadOutput, error)
	uploadLayerPart      func(ctx context.Context, params *ecr.UploadLayerPartInput, optFns ...func(*ecr.Options)) (*ecr.UploadLayerPartOutput, error)
	completeLayerUpload  func(ctx context.Context, params *ecr.CompleteLayerUploadInput, optFns ...func(*ecr.Options)) (*ecr.CompleteLayerUploadOutput, error)
	putImage             func(ctx context.Context, params *ecr.PutImageInput, optFns ...func(*ecr.Options)) (*ecr.PutImageOutput, error)
	describeImages       func(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
	batchDeleteImage     func(ctx context.Context, params *ecr.BatchDeleteImageInput, optFns ...func(*ecr.Options)) (*ecr.BatchDeleteImageOutput, error)
}

func (f *fakeECR) DescribeRepositories(
	ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options),
) (*ecr.DescribeRepositoriesOutput, error) {
	if f.describeRepositories == nil {
		return nil, fmt.Errorf("unexpected DescribeRepositories call")
	}
	return f.describeRepositories(ctx, params, optFns...)
}

func (f *fakeECR) CreateRepository(
	ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options),
) (*ecr.CreateRepositoryOutput, error) {
	if f.createRepository == nil {
		return nil, fmt.Errorf("unexpected CreateRepository call")
	}
	return f.createRepository(ctx, params, optFns...)
}

func (f *fakeECR) GetAuthorizationToken(
	ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options),
) (*ecr.GetAuthorizationTokenOutput, error) {
	if f.getAuthorization == nil {
		return nil, fmt.Errorf("unexpected GetAuthorizationToken call")
	}
	return f.getAuthorization(ctx, params, optFns...)
}

func (f *fakeECR) InitiateLayerUpload(
	ctx context.Context, params *ecr.InitiateLayerUploadInput, optFns ...func(*ecr.Options),
) (*ecr.InitiateLayerUploadOutput, error) {
	if f.initiateLayerUpload == nil {
		return nil, fmt.Errorf("unexpected InitiateLayerUpload call")
	}
	return f.initiateLayerUpload(ctx, params, optFns...)
}

func (f *fakeECR) UploadLayerPart(
	ctx context.Context, params *ecr.UploadLayerPartInput, optFns ...func(*ecr.Options),
) (*ecr.UploadLayerPartOutput, error) {
	if f.uploadLayerPart == nil {
		return nil, fmt.Errorf("unexpected UploadLayerPart call")
	}
	return f.uploadLayerPart(ctx, params, optFns...)
}

func (f *fakeECR) CompleteLayerUpload(
	ctx context.Context, params *ecr.CompleteLayerUploadInput, optFns ...func(*ecr.Options),
) (*ecr.CompleteLayerUploadOutput, error) {
	if f.completeLayerUpload == nil {
		return nil, fmt.Errorf("unexpected CompleteLayerUpload call")
	}
	return f.completeLayerUpload(ctx, params, optFns...)
}

func (f *fakeECR) PutImage(
	ctx context.Context, params *ecr.PutImageInput, optFns ...func(*ecr.Options),
) (*ecr.PutImageOutput, error) {
	if f.putImage == nil {
		return nil, fmt.Errorf("unexpected PutImage call")
	}
	return f.putImage(ctx, params, optFns...)
}

func (f *fakeECR) DescribeImages(
	ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options),
) (*ecr.DescribeImagesOutput, error) {
	if f.describeImages == nil {
		return nil, fmt.Errorf("unexpected DescribeImages call")
	}
	return f.describeImages(ctx, params, optFns...)
}

func (f *fakeECR) BatchDeleteImage(
	ctx context.Context, params *ecr.BatchDeleteImageInput, optFns ...func(*ecr.Options),
) (*ecr.BatchDeleteImageOutput, error) {
	if f.batchDeleteImage == nil {
		return nil, fmt.Errorf("unexpected BatchDeleteImage call")
	}
	return f.batchDeleteImage(ctx, params, optFns...)
}

// authToken builds a base64 user:password token the way the auth endpoint does.
func authToken(user, password string) *string {
	return aws.String(base64.StdEncoding.EncodeToString([]byte(user + ":" + password)))
}

// taggedImage is one manifest+tag pair stored by the stateful fake.
type taggedImage struct {
	manifest  string
	mediaType string
}

// fakeRegistry is a stateful in-memory registry. It sequences the upload
// protocol the way the real control plane does: parts are accumulated per
// upload session and the completion call validates the declared digest
// against the actual bytes received.
type fakeRegistry struct {
	fakeECR

	uploads     map[string][]byte
	layers      map[string][]byte
	images      map[string]taggedImage
	nextUpload  int
	authCalls   int
	putCalls    int
	advertised  int64
	partCount   int
	partOffsets [][2]int64
}

func newFakeRegistry() *fakeRegistry {
	r := &fakeRegistry{
		uploads: make(map[string][]byte),
		layers:  make(map[string][]byte),
		images:  make(map[string]taggedImage),
	}

	r.getAuthorization = func(context.Context, *ecr.GetAuthorizationTokenInput, ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error) {
		r.authCalls++
		return &ecr.GetAuthorizationTokenOutput{
			AuthorizationData: []ecrtypes.AuthorizationData{
				{
					AuthorizationToken: authToken("AWS", "secret"),
					ProxyEndpoint:      aws.String("https://123456789012.dkr.ecr.us-east-1.amazonaws.com"),
					ExpiresAt:          aws.Time(time.Now().Add(12 * time.Hour)),
				},
			},
		}, nil
	}

	r.initiateLayerUpload = func(context.Context, *ecr.InitiateLayerUploadInput, ...func(*ecr.Options)) (*ecr.InitiateLayerUploadOutput, error) {
		r.nextUpload++
		id := fmt.Sprintf("upload-%d", r.nextUpload)
		r.uploads[id] = nil
		out := &ecr.InitiateLayerUploadOutput{UploadId: aws.String(id)}
		if r.advertised > 0 {
			out.PartSize = aws.Int64(r.advertised)
		}
		return out, nil
	}

	r.uploadLayerPart = func(_ context.Context, params *ecr.UploadLayerPartInput, _ ...func(*ecr.Options)) (*ecr.UploadLayerPartOutput, error) {
		id := aws.ToString(params.UploadId)
		buf, ok := r.uploads[id]
		if !ok {
			return nil, fmt.Errorf("unknown upload session %s", id)
		}
		if aws.ToInt64(params.PartFirstByte) != int64(len(buf)) {
			return nil, fmt.Errorf("part out of order: first byte %d, have %d bytes",
				aws.ToInt64(params.PartFirstByte), len(buf))
		}
		r.partCount++
		r.partOffsets = append(r.partOffsets, [2]int64{
			aws.ToInt64(params.PartFirstByte),
			aws.ToInt64(params.PartLastByte),
		})
		r.uploads[id] = append(buf, params.LayerPartBlob...)
		return &ecr.UploadLayerPartOutput{UploadId: params.UploadId}, nil
	}

	r.completeLayerUpload = func(_ context.Context, params *ecr.CompleteLayerUploadInput, _ ...func(*ecr.Options)) (*ecr.CompleteLayerUploadOutput, error) {
		id := aws.ToString(params.UploadId)
		buf, ok := r.uploads[id]
		if !ok {
			return nil, fmt.Errorf("unknown upload session %s", id)
		}
		if len(params.LayerDigests) != 1 {
			return nil, fmt.Errorf("expected exactly one layer digest, got %d", len(params.LayerDigests))
		}
		declared := params.LayerDigests[0]
		sum := sha256.Sum256(buf)
		actual := "sha256:" + hex.EncodeToString(sum[:])
		if declared != actual {
			return nil, &ecrtypes.InvalidLayerException{
				Message: aws.String(fmt.Sprintf("digest mismatch: declared %s, actual %s", declared, actual)),
			}
		}
		if _, exists := r.layers[declared]; exists {
			return nil, &ecrtypes.LayerAlreadyExistsException{
				Message: aws.String("layer already exists"),
			}
		}
		r.layers[declared] = buf
		delete(r.uploads, id)
		return &ecr.CompleteLayerUploadOutput{LayerDigest: aws.String(declared)}, nil
	}

	r.putImage = func(_ context.Context, params *ecr.PutImageInput, _ ...func(*ecr.Options)) (*ecr.PutImageOutput, error) {
		r.putCalls++
		tag := aws.ToString(params.ImageTag)
		manifest := aws.ToString(params.ImageManifest)
		if existing, ok := r.images[tag]; ok && existing.manifest == manifest {
			return nil, &ecrtypes.ImageAlreadyExistsException{
				Message: aws.String("image already exists"),
			}
		}
		r.images[tag] = taggedImage{
			manifest:  manifest,
			mediaType: aws.ToString(params.ImageManifestMediaType),
		}
		return &ecr.PutImageOutput{}, nil
	}

	return r
}
