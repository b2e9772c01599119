package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one object in blob storage.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves objects and listings from blob storage.
type BlobReader interface {
	// Get returns the object body; the caller closes it. ErrNotFound when
	// the object does not exist.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}
