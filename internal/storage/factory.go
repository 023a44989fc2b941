package storage

import (
	"context"
	"fmt"

	"github.com/timmy/photovault/internal/config"
)

// NewContentStore builds the store selected by cfg.Type.
func NewContentStore(ctx context.Context, cfg config.StorageConfig) (ContentStore, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStore(cfg.Root)
	case "s3":
		store, err := NewS3Store(ctx, &S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Prefix:    cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "minio":
		store, err := NewMinIOStore(&MinIOConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
