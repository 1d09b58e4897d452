// Package storage selects the artifact store used to archive raw scan reports.
package storage

import (
	"context"
	"fmt"

	"github.com/MaanVader/Chack/application/ports"
	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/infrastructure/storage/adapters/fs"
	"github.com/MaanVader/Chack/infrastructure/storage/adapters/s3"
	"github.com/MaanVader/Chack/observability"
)

// FilesystemBucket is the directory under the base path that holds reports.
const FilesystemBucket = "reports"

// CreateStorage builds the adapter selected by cfg.Adapters.Storage. It
// returns nil storage when no adapter is configured.
func CreateStorage(ctx context.Context, cfg *config.Config, obs observability.Provider) (ports.Storage, error) {
	logger := obs.Logger("storage")
	metrics := obs.Metrics("storage")

	switch cfg.Adapters.Storage {
	case "":
		return nil, nil

	case config.StorageS3:
		logger.Info(ctx, "Creating S3 storage adapter", observability.Fields{
			"bucket": cfg.Storage.BucketOrPath,
			"region": cfg.Storage.S3.Region,
		})
		c, err := s3.New(ctx, &cfg.Storage, logger, metrics)
		if err != nil {
			return nil, err
		}
		return c, nil

	case config.StorageFilesystem:
		logger.Info(ctx, "Creating filesystem storage adapter", observability.Fields{"path": cfg.Storage.BucketOrPath})
		s, err := fs.NewStorage(cfg.Storage.BucketOrPath, logger, metrics)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported storage adapter: %q", cfg.Adapters.Storage)
	}
}

// ArtifactBucket returns the bucket argument executors pass to the adapter
// selected by cfg.
func ArtifactBucket(cfg *config.Config) string {
	if cfg.Adapters.Storage == config.StorageFilesystem {
		return FilesystemBucket
	}
	return cfg.Storage.BucketOrPath
}
