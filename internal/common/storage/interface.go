package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned by StatObject when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines the object operations used by video and avatar uploads.
// Clients upload and download directly through presigned URLs.
type ObjectStorage interface {
	// PresignPut returns a URL the client can PUT the object body to.
	PresignPut(ctx context.Context, bucket, objectKey string, ttl time.Duration) (string, error)

	// PresignGet returns a time-limited download URL.
	PresignGet(ctx context.Context, bucket, objectKey string, ttl time.Duration) (string, error)

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)

	// ListObjects streams every object below prefix.
	ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo

	// RemoveObjects deletes keys in one batch request.
	RemoveObjects(ctx context.Context, bucket string, keys []string) error
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}

// ObjectInfo is one entry of a listing.
type ObjectInfo struct {
	Key       string
	SizeBytes int64
	Err       error
}
