// Package storage keeps uploaded binaries outside the database. Rows only
// hold the key returned to the caller of Put.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/cppla/teamfeed/config"
)

// ErrNotFound is returned by Open for a key with no object.
var ErrNotFound = errors.New("storage: object not found")

// Storage is a flat key/value blob store.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// New builds the backend selected by cfg.StorageDriver.
func New(ctx context.Context, cfg config.AppConfig) (Storage, error) {
	switch strings.ToLower(cfg.StorageDriver) {
	case "", "local":
		return NewLocal(cfg.UploadDir)
	case "s3", "minio":
		s, err := NewS3(S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			Bucket:    cfg.S3Bucket,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket %s: %w", cfg.S3Bucket, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

// NewKey builds "prefix/<uuid><ext>" keeping only a short, lower-cased
// extension of the original file name.
func NewKey(prefix, originalName string) string {
	ext := strings.ToLower(path.Ext(originalName))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return strings.TrimSuffix(prefix, "/") + "/" + uuid.NewString() + ext
}

// RemoveAll deletes every key and returns the first error.
func RemoveAll(ctx context.Context, s Storage, keys []string) error {
	var first error
	for _, k := range keys {
		if err := s.Remove(ctx, k); err != nil && first == nil {
			first = err
		}
	}
	return first
}
