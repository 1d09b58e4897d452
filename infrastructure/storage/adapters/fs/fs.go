// Package fs stores scan artifacts on the local filesystem, one directory
// per bucket.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MaanVader/Chack/application/ports"
	"github.com/MaanVader/Chack/observability/types"
)

const metadataSuffix = ".metadata.json"

// ErrInvalidKey is returned for keys escaping the bucket directory.
var ErrInvalidKey = errors.New("invalid object key")

// Storage implements ports.Storage using the local filesystem.
type Storage struct {
	basePath string
	logger   types.Logger
	metrics  types.Metrics
}

// NewStorage creates a filesystem storage rooted at basePath.
func NewStorage(basePath string, logger types.Logger, metrics types.Metrics) (*Storage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		logger.Error(context.Background(), "Failed to create base path", err, types.Fields{"path": basePath})
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	logger.Info(context.Background(), "Filesystem storage initialized", types.Fields{"base_path": basePath})

	return &Storage{
		basePath: basePath,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Put stores an object. The write goes to a temporary file that is renamed
// into place, so readers never see a partial object.
func (s *Storage) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ports.ObjectMetadata) error {
	startTime := time.Now()

	objectPath, err := s.getObjectPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		s.metrics.RecordError("storage_put", "mkdir")
		return fmt.Errorf("failed to create bucket directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(objectPath), ".tmp-*")
	if err != nil {
		s.metrics.RecordError("storage_put", "create")
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bytesWritten, err := io.Copy(tmp, reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.logger.Error(ctx, "Failed to write data", err, types.Fields{"bucket": bucket, "key": key})
		s.metrics.RecordError("storage_put", "write")
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := os.Rename(tmp.Name(), objectPath); err != nil {
		s.metrics.RecordError("storage_put", "rename")
		return fmt.Errorf("failed to move object into place: %w", err)
	}

	metadata.ContentLength = bytesWritten
	if err := s.saveMetadata(objectPath, metadata); err != nil {
		s.metrics.RecordError("storage_put", "metadata")
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	s.logger.Debug(ctx, "Object stored", types.Fields{
		"bucket":      bucket,
		"key":         key,
		"bytes":       bytesWritten,
		"duration_ms": time.Since(startTime).Milliseconds(),
	})
	s.metrics.RecordSuccess("storage_put")
	s.metrics.RecordDuration("storage_put", time.Since(startTime).Seconds())

	return nil
}

// Get retrieves an object. Missing objects return ports.ErrObjectNotFound.
func (s *Storage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	objectPath, err := s.getObjectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(objectPath)
	if err != nil {
		if os.IsNotExist(err) {
			s.metrics.RecordError("storage_get", "not_found")
			return nil, fmt.Errorf("%w: %s/%s", ports.ErrObjectNotFound, bucket, key)
		}
		s.metrics.RecordError("storage_get", "open")
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	s.metrics.RecordSuccess("storage_get")
	return file, nil
}

// Metadata returns the metadata saved alongside an object.
func (s *Storage) Metadata(bucket, key string) (ports.ObjectMetadata, error) {
	objectPath, err := s.getObjectPath(bucket, key)
	if err != nil {
		return ports.ObjectMetadata{}, err
	}
	return s.loadMetadata(objectPath)
}

// Exists checks if an object exists.
func (s *Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	objectPath, err := s.getObjectPath(bucket, key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(objectPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}

	s.logger.Error(ctx, "Failed to check object existence", err, types.Fields{"bucket": bucket, "key": key})
	return false, err
}

// Delete removes an object and its metadata. Deleting a missing object is not an error.
func (s *Storage) Delete(ctx context.Context, bucket, key string) error {
	objectPath, err := s.getObjectPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.Remove(objectPath); err != nil && !os.IsNotExist(err) {
		s.metrics.RecordError("storage_delete", "remove")
		return fmt.Errorf("failed to delete object: %w", err)
	}
	_ = os.Remove(objectPath + metadataSuffix)

	s.metrics.RecordSuccess("storage_delete")
	return nil
}

// getObjectPath resolves key under the bucket directory and rejects keys
// that would escape it.
func (s *Storage) getObjectPath(bucket, key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	bucketPath := filepath.Join(s.basePath, bucket)
	objectPath := filepath.Join(bucketPath, filepath.FromSlash(key))

	rel, err := filepath.Rel(bucketPath, objectPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return objectPath, nil
}

func (s *Storage) saveMetadata(objectPath string, metadata ports.ObjectMetadata) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return os.WriteFile(objectPath+metadataSuffix, data, 0o644)
}

func (s *Storage) loadMetadata(objectPath string) (ports.ObjectMetadata, error) {
	var metadata ports.ObjectMetadata

	data, err := os.ReadFile(objectPath + metadataSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return metadata, nil
		}
		return metadata, err
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, err
	}
	return metadata, nil
}
