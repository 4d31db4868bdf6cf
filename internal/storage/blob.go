// Package storage is the blob-store boundary. Services depend on the
// BlobStore port; production wires the MinIO implementation and tests
// wire the in-memory one.
package storage

import (
	"context"
	"io"
	"time"
)

type BlobStore interface {
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, path string) error
	// RemovePrefix deletes every object under the prefix and returns
	// the count removed; used by the CD delete saga.
	RemovePrefix(ctx context.Context, prefix string) (int64, error)
	// PresignedGet returns a time-limited download URL for an object.
	PresignedGet(ctx context.Context, path string, expiry time.Duration) (string, error)
}
