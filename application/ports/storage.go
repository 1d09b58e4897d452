package ports

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Storage.Get for missing keys
var ErrObjectNotFound = errors.New("object not found")

// ObjectMetadata represents metadata associated with stored objects
type ObjectMetadata struct {
	ContentType   string
	ContentLength int64
	UserMetadata  map[string]string
}

// Storage stores scan artifacts under a bucket (or base directory)
type Storage interface {
	// Put stores an object under key
	Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ObjectMetadata) error

	// Get retrieves an object by key
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Delete removes an object
	Delete(ctx context.Context, bucket, key string) error
}
