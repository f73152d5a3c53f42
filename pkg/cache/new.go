package cache

import (
	"context"

	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// Config selects and configures a backend.
type Config struct {
	Backend string // BackendFile, BackendRedis or BackendNone
	Dir     string // FileCache directory
	Redis   RedisConfig
}

// New opens the backend named by cfg.Backend. An empty backend means file.
func New(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", BackendFile:
		if cfg.Dir == "" {
			return nil, apperrors.New(apperrors.ErrCodeInvalidConfig, "file cache needs a directory")
		}
		c, err := NewFileCache(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendRedis:
		c, err := NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendNone:
		return NewNullCache(), nil
	}
	return nil, apperrors.New(apperrors.ErrCodeInvalidConfig,
		"unknown cache backend %q (want %s, %s or %s)", cfg.Backend, BackendFile, BackendRedis, BackendNone)
}
