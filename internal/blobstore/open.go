package blobstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"content-server/internal/config"
)

// Open builds the store selected by BLOB_BACKEND.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case "s3":
		store, err := NewS3Store(ctx, S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "local":
		log.Info().Str("root", cfg.BlobRoot).Msg("✓ Local blob store selected")
		return NewLocalStore(cfg.BlobRoot), nil
	}
	return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
}
