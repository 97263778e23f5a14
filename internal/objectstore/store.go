// Package objectstore provides bucket/key blob storage for raw market data.
//
// Two backends implement Store:
//   - S3Store: any S3-compatible service (MinIO in development)
//   - LocalStore: a directory tree, one subdirectory per bucket
//
// Every read and write confirms the bucket exists first. Buckets are only
// created by EnsureBucket, never implicitly on the write path.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/loader"
	"github.com/xtxerr/coinlake/internal/validation"
)

// Store is a bucket/key blob store.
type Store interface {
	// EnsureBucket creates the bucket if it does not exist. It never fails
	// because the bucket already exists.
	EnsureBucket(ctx context.Context, bucket string) error

	// BucketExists reports whether the bucket exists.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// PutObject stores length bytes read from data under bucket/key.
	// A negative length reads data to EOF.
	PutObject(ctx context.Context, bucket, key string, data io.Reader, length int64, contentType string) error

	// GetObject returns the full object. The transport is drained and
	// released before it returns.
	GetObject(ctx context.Context, bucket, key string) (*bytes.Reader, error)

	// Stat returns object metadata.
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// ListObjects returns objects whose key starts with prefix, sorted by key.
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// DefaultContentType is used when a caller passes none.
const DefaultContentType = "application/octet-stream"

// New builds the backend selected by cfg.
func New(ctx context.Context, cfg loader.ObjectStoreConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "s3", "":
		return NewS3(ctx, S3Options{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			Secure:    cfg.Secure,
		}, logger)
	case "local":
		return NewLocal(cfg.LocalRoot, logger)
	default:
		return nil, errors.NewInvalidValue("object_store.backend", cfg.Backend, "expected s3 or local")
	}
}

func validateTarget(bucket, key string) error {
	if err := validation.ValidateBucket(bucket); err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	return validation.ValidateKey(key)
}

// readBody reads exactly length bytes (or to EOF when length is negative)
// so that nothing is sent for a short body.
func readBody(data io.Reader, length int64) ([]byte, error) {
	if data == nil {
		if length > 0 {
			return nil, fmt.Errorf("nil body with length %d", length)
		}
		return []byte{}, nil
	}
	if length < 0 {
		return io.ReadAll(data)
	}
	buf := make([]byte, length)
	n, err := io.ReadFull(data, buf)
	if err != nil {
		return nil, fmt.Errorf("read body: got %d of %d bytes: %w", n, length, err)
	}
	return buf, nil
}

func contentTypeOrDefault(ct string) string {
	if ct == "" {
		return DefaultContentType
	}
	return ct
}
