// Package storage provides access to the source object store.
//
// The backup pipeline only needs two operations from the store: enumerate
// keys under a prefix and fetch an object's bytes. Everything else about the
// store is deliberately out of scope.
package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore is the contract the sync orchestrator consumes.
type ObjectStore interface {
	// List returns all object keys under the given prefix, in listing order.
	// An empty result is a valid outcome, not an error.
	List(ctx context.Context, prefix string) ([]string, error)

	// Fetch returns the full byte content of the object at key.
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// S3API is the subset of the S3 client surface used by the object store.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}
