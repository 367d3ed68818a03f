package registry

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

const (
	defaultTagLength = 12
	defaultPartSize  = 10 * 1024 * 1024
)

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithTagLength sets how many digest hex characters form the image tag.
func WithTagLength(n int) PublisherOption {
	return func(p *Publisher) {
		p.tagLength = n
	}
}

// WithLayerPartSize sets the byte-range size for chunked layer uploads.
func WithLayerPartSize(n int64) PublisherOption {
	return func(p *Publisher) {
		p.partSize = n
	}
}

// Publisher turns raw bytes into a tagged single-layer image in one
// repository. Publishing identical bytes twice converges on the same tag.
type Publisher struct {
	client     ECRAPI
	tokens     CredentialSource
	repository string
	tagLength  int
	partSize   int64
	logger     *zap.Logger
}

// NewPublisher creates an image publisher for the given repository.
func NewPublisher(
	client ECRAPI,
	tokens CredentialSource,
	repository string,
	logger *zap.Logger,
	opts ...PublisherOption,
) *Publisher {
	p := &Publisher{
		client:     client,
		tokens:     tokens,
		repository: repository,
		tagLength:  defaultTagLength,
		partSize:   defaultPartSize,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tag returns the content-derived tag for the given bytes without
// publishing anything.
func (p *Publisher) Tag(body []byte) string {
	return p.tagFor(digest.FromBytes(body))
}

func (p *Publisher) tagFor(dgst digest.Digest) string {
	hex := dgst.Encoded()
	if p.tagLength < len(hex) {
		return hex[:p.tagLength]
	}
	return hex
}

// Publish uploads body as a layer, assembles the manifest, and tags the
// result with the digest-derived tag. Every failed step is reported as a
// *ProtocolError; the safe recovery is re-running Publish from scratch.
//
// A crash after the layer upload but before tagging leaves an untagged
// image behind; that is garbage for the sweeper, not corruption.
func (p *Publisher) Publish(ctx context.Context, body []byte) (string, error) {
	dgst := digest.FromBytes(body)
	tag := p.tagFor(dgst)
	size := int64(len(body))

	creds, err := p.tokens.Credentials(ctx)
	if err != nil {
		return "", &ProtocolError{Step: StepAuthorize, Err: err}
	}
	p.logger.Debug("authorized against registry",
		zap.String("endpoint", creds.Endpoint),
		zap.Time("credentialExpiry", creds.ExpiresAt))

	init, err := p.client.InitiateLayerUpload(ctx, &ecr.InitiateLayerUploadInput{
		RepositoryName: aws.String(p.repository),
	})
	if err != nil {
		return "", &ProtocolError{Step: StepInitiateLayerUpload, Err: err}
	}
	uploadID := init.UploadId

	// The registry advertises its preferred part size with the upload
	// session; never send parts larger than that.
	partSize := p.partSize
	if advertised := aws.ToInt64(init.PartSize); advertised > 0 && advertised < partSize {
		partSize = advertised
	}

	for _, r := range partRanges(size, partSize) {
		_, err := p.client.UploadLayerPart(ctx, &ecr.UploadLayerPartInput{
			RepositoryName: aws.String(p.repository),
			UploadId:       uploadID,
			PartFirstByte:  aws.Int64(r.first),
			PartLastByte:   aws.Int64(r.last),
			LayerPartBlob:  body[r.first : r.last+1],
		})
		if err != nil {
			return "", &ProtocolError{Step: StepUploadLayerPart, Err: err}
		}
	}

	// The registry validates the finalized blob against the declared
	// digest and fails this call on mismatch.
	_, err = p.client.CompleteLayerUpload(ctx, &ecr.CompleteLayerUploadInput{
		RepositoryName: aws.String(p.repository),
		UploadId:       uploadID,
		LayerDigests:   []string{dgst.String()},
	})
	if err != nil {
		var exists *ecrtypes.LayerAlreadyExistsException
		if !errors.As(err, &exists) {
			return "", &ProtocolError{Step: StepCompleteLayerUpload, Err: err}
		}
		p.logger.Debug("layer already present", zap.String("digest", dgst.String()))
	}

	manifest, err := BuildManifest(dgst, size)
	if err != nil {
		return "", &ProtocolError{Step: StepPutImage, Err: err}
	}

	_, err = p.client.PutImage(ctx, &ecr.PutImageInput{
		RepositoryName:         aws.String(p.repository),
		ImageManifest:          aws.String(string(manifest)),
		ImageManifestMediaType: aws.String(v1.MediaTypeImageManifest),
		ImageTag:               aws.String(tag),
	})
	if err != nil {
		var exists *ecrtypes.ImageAlreadyExistsException
		if !errors.As(err, &exists) {
			return "", &ProtocolError{Step: StepPutImage, Err: err}
		}
		// Identical bytes were already published under this tag.
		p.logger.Debug("image already tagged", zap.String("tag", tag))
	}

	p.logger.Info("published image",
		zap.String("repository", p.repository),
		zap.String("tag", tag),
		zap.Int64("size", size))

	return tag, nil
}

type byteRange struct {
	first int64
	last  int64
}

// partRanges splits size bytes into inclusive ranges of at most partSize,
// in ascending offset order. A zero-length blob still produces one range so
// the upload session carries the empty content.
func partRanges(size, partSize int64) []byteRange {
	if size == 0 {
		return []byteRange{{first: 0, last: -1}}
	}

	var ranges []byteRange
	for first := int64(0); first < size; first += partSize {
		last := first + partSize - 1
		if last > size-1 {
			last = size - 1
		}
		ranges = append(ranges, byteRange{first: first, last: last})
	}
	return ranges
}
