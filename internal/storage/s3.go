package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// s3ObjectStore reads source objects from a single S3 bucket.
type s3ObjectStore struct {
	client S3API
	bucket string
	logger *zap.Logger
}

// NewS3ObjectStore creates an ObjectStore backed by the given S3 client.
func NewS3ObjectStore(client S3API, bucket string, logger *zap.Logger) ObjectStore {
	return &s3ObjectStore{
		client: client,
		bucket: bucket,
		logger: logger,
	}
}

// List enumerates keys under prefix, following continuation tokens until the
// listing is exhausted.
func (s *s3ObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in bucket %s: %w", s.bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	s.logger.Debug("listed source objects",
		zap.String("bucket", s.bucket),
		zap.String("prefix", prefix),
		zap.Int("count", len(keys)))

	return keys, nil
}

// Fetch downloads the object at key and returns its full content.
func (s *s3ObjectStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	return data, nil
}
