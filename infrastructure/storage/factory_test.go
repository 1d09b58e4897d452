package storage

import (
	"context"
	"testing"

	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/infrastructure/storage/adapters/fs"
	"github.com/MaanVader/Chack/observability/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("no adapter disables archiving", func(t *testing.T) {
		s, err := CreateStorage(ctx, &config.Config{}, mocks.NewNopProvider())
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("filesystem", func(t *testing.T) {
		cfg := &config.Config{
			Adapters: config.AdapterConfig{Storage: config.StorageFilesystem},
			Storage:  config.StorageConfig{BucketOrPath: t.TempDir()},
		}
		s, err := CreateStorage(ctx, cfg, mocks.NewNopProvider())
		require.NoError(t, err)
		assert.IsType(t, &fs.Storage{}, s)
		assert.Equal(t, FilesystemBucket, ArtifactBucket(cfg))
	})

	t.Run("unsupported", func(t *testing.T) {
		cfg := &config.Config{Adapters: config.AdapterConfig{Storage: "gcs"}}
		_, err := CreateStorage(ctx, cfg, mocks.NewNopProvider())
		assert.ErrorContains(t, err, "unsupported storage adapter")
	})
}

func TestArtifactBucket_S3UsesConfiguredBucket(t *testing.T) {
	cfg := &config.Config{
		Adapters: config.AdapterConfig{Storage: config.StorageS3},
		Storage:  config.StorageConfig{BucketOrPath: "chack-reports"},
	}
	assert.Equal(t, "chack-reports", ArtifactBucket(cfg))
}
