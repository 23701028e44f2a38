package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	"gocloud.dev/gcerrors"
)

// BlobStore writes objects to any gocloud.dev bucket. Objects are written
// to a temporary key and copied into place on Commit, so a partially
// transferred object is never visible at its final key.
type BlobStore struct {
	bucket  *blob.Bucket
	prefix  string
	uriBase string
}

// OpenBlobStore opens a bucket from a gocloud.dev URL.
func OpenBlobStore(ctx context.Context, bucketURL, prefix string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}

	base := bucketURL
	if u, err := url.Parse(bucketURL); err == nil {
		u.RawQuery = ""
		base = strings.TrimSuffix(u.String(), "/")
	}
	return NewBlobStore(bucket, prefix, base), nil
}

// NewBlobStore wraps an already opened bucket. uriBase is used to build
// URIs, e.g. "s3://my-bucket".
func NewBlobStore(bucket *blob.Bucket, prefix, uriBase string) *BlobStore {
	return &BlobStore{bucket: bucket, prefix: prefix, uriBase: uriBase}
}

func (s *BlobStore) key(key string) string {
	return s.prefix + key
}

// Exists checks if an object already exists at key.
func (s *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, s.key(key))
}

// ParentExists is always true for object stores.
func (s *BlobStore) ParentExists(ctx context.Context, key string) (bool, error) {
	return true, nil
}

// Create starts a write to a temporary key. Cancelling ctx aborts it.
func (s *BlobStore) Create(ctx context.Context, key string) (PendingObject, error) {
	finalKey := s.key(key)
	tempKey := finalKey + ".tmp." + uuid.New().String()

	wctx, cancel := context.WithCancel(ctx)
	w, err := s.bucket.NewWriter(wctx, tempKey, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create writer for %s: %w", tempKey, err)
	}
	return &blobPending{
		ctx:      ctx,
		bucket:   s.bucket,
		w:        w,
		cancel:   cancel,
		tempKey:  tempKey,
		finalKey: finalKey,
	}, nil
}

type blobPending struct {
	ctx      context.Context
	bucket   *blob.Bucket
	w        *blob.Writer
	cancel   context.CancelFunc
	tempKey  string
	finalKey string
	done     bool
}

func (p *blobPending) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

func (p *blobPending) Commit() error {
	if p.done {
		return errors.New("pending object already finished")
	}
	p.done = true
	defer p.cancel()

	if err := p.w.Close(); err != nil {
		p.deleteTemp()
		return fmt.Errorf("close writer for %s: %w", p.tempKey, err)
	}

	// Copy to final location, then delete temp
	if err := p.bucket.Copy(p.ctx, p.finalKey, p.tempKey, nil); err != nil {
		p.deleteTemp()
		return fmt.Errorf("copy %s to %s: %w", p.tempKey, p.finalKey, err)
	}
	// a leftover temp object is harmless once the final key exists
	_ = p.deleteTemp()
	return nil
}

func (p *blobPending) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	p.cancel()
	p.w.Close()
	return p.deleteTemp()
}

// deleteTemp runs even when the write context is cancelled. The temp
// object may never have been created.
func (p *blobPending) deleteTemp() error {
	err := p.bucket.Delete(context.WithoutCancel(p.ctx), p.tempKey)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete %s: %w", p.tempKey, err)
	}
	return nil
}

// Head returns metadata about a stored object.
func (s *BlobStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := s.bucket.Attributes(ctx, s.key(key))
	if err != nil {
		return nil, fmt.Errorf("get attributes for %s: %w", key, err)
	}
	return &ObjectInfo{
		Key:     key,
		Size:    attrs.Size,
		ETag:    attrs.ETag,
		ModTime: attrs.ModTime,
	}, nil
}

// URI returns the canonical URI for the given key.
func (s *BlobStore) URI(key string) string {
	return fmt.Sprintf("%s/%s", s.uriBase, s.key(key))
}

// Close releases the bucket connection.
func (s *BlobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
