// Package filestore stores item images in an object store and hands back
// the link that goes into an item's image field.
//
// Providers implement Store; callers depend only on this package.
//
// Usage:
//
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	images := filestore.NewImages(store, cfg, log)
//	link, err := images.Upload(ctx, itemID, "image/png", file, size)
package filestore

import (
	"context"
	"io"
	"time"
)

// Store is the interface every object storage provider implements. All
// keys are relative to the single configured bucket.
type Store interface {
	// Ping verifies the backend is reachable and the bucket exists.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// PutObject streams size bytes from r to key.
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// StatObject returns metadata for key without downloading it.
	StatObject(ctx context.Context, key string) (*ObjectInfo, error)

	// RemoveObject deletes key. Removing a missing key is not an error.
	RemoveObject(ctx context.Context, key string) error

	// PresignGetURL returns a time-limited URL that allows anyone to
	// download key without credentials.
	PresignGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
