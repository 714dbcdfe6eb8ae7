// Package storage defines the archive abstraction for failed-build console
// logs. Backends: local filesystem (default) and S3-compatible object
// storage (AWS S3, MinIO).
package storage

import (
	"context"
	"io"
)

// Archive stores and retrieves console log blobs keyed by
// "{provider}/{pipeline}/{build}.log".
type Archive interface {
	// Put writes the log content for key, replacing any previous content.
	Put(ctx context.Context, key string, data io.Reader, size int64) error

	// Get retrieves the log content for key. The returned ReadCloser must
	// be closed by the caller.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether a log is archived under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Type returns the backend identifier ("local" or "s3").
	Type() string
}
