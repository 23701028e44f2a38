package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrMissingRoot is returned when the local destination directory does not
// exist. The store never creates it.
var ErrMissingRoot = errors.New("destination directory does not exist")

// Store abstracts the destination of downloaded files. Keys are
// slash-separated paths relative to the store root.
type Store interface {
	// Exists checks if an object is already present at key.
	Exists(ctx context.Context, key string) (bool, error)

	// ParentExists checks if the directory that would hold key exists.
	// Object stores have no directories and always report true.
	ParentExists(ctx context.Context, key string) (bool, error)

	// Create opens a pending object for key. Nothing is visible at key
	// until Commit succeeds.
	Create(ctx context.Context, key string) (PendingObject, error)

	// Head returns metadata about a stored object.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// PendingObject is an in-progress write. Exactly one of Commit or Abort
// must be called.
type PendingObject interface {
	io.Writer

	// Commit publishes the written bytes at the final key.
	Commit() error

	// Abort discards the written bytes.
	Abort() error
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ETag    string // MD5 for S3/GCS, empty for local
	ModTime time.Time
}

// StorageConfig configures the storage backend.
type StorageConfig struct {
	Backend string // "local" | "gcs" | "s3" | "blob"

	// Local filesystem
	LocalDir string

	// GCS / S3
	Bucket string

	// S3 (also works for B2, R2, MinIO)
	S3Endpoint string // custom endpoint for B2/MinIO/R2
	S3Region   string

	// Any gocloud.dev bucket URL (mem://, file:///path, ...)
	BucketURL string

	// Common
	Prefix string // path prefix within the bucket
}

// NewStore creates a storage backend based on configuration.
func NewStore(ctx context.Context, cfg StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocalStore(cfg.LocalDir)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for gcs backend")
		}
		return NewGCSStore(ctx, cfg.Bucket, cfg.Prefix)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for s3 backend")
		}
		return NewS3Store(ctx, cfg.Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region)
	case "blob":
		if cfg.BucketURL == "" {
			return nil, fmt.Errorf("bucket URL required for blob backend")
		}
		return OpenBlobStore(ctx, cfg.BucketURL, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
