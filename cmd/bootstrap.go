package cmd

import (
	"context"
	"fmt"

	"benirage/config"
	"benirage/logger"
	"benirage/storage"
)

func initLogger(cfg *config.Config) {
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
}

// openStore builds the configured object store. MinIO buckets are created
// when missing.
func openStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		base := cfg.PublicBaseURL
		if base == "" {
			base = "memory://" + cfg.MinioBucket
		}
		logger.Warn("using in-memory object storage; uploads are lost on restart")
		return storage.NewMemoryStore(base), nil
	case config.StorageMinio:
		store, err := openMinio(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func openMinio(cfg *config.Config) (*storage.MinioStore, error) {
	return storage.NewMinioStore(storage.MinioOptions{
		Endpoint:      cfg.MinioEndpoint,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		Bucket:        cfg.MinioBucket,
		Region:        cfg.MinioRegion,
		UseSSL:        cfg.MinioUseSSL,
		PublicBaseURL: cfg.PublicBaseURL,
	})
}
