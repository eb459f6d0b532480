package app

import (
	"context"
	"fmt"

	"github.com/lumen-apothecary/storefront/internal/config"
	"github.com/lumen-apothecary/storefront/internal/localstore"
)

// openStorage is replaced in tests.
var openStorage = openConfiguredStorage

// openConfiguredStorage returns the configured storage and a function
// releasing it.
func openConfiguredStorage(ctx context.Context, cfg config.StorageConfig) (localstore.Storage, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.StorageMemory:
		return localstore.NewMemory(), noop, nil
	case config.StorageFile:
		fs, err := localstore.NewFile(cfg.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open file storage: %w", err)
		}
		return fs, noop, nil
	case config.StorageRedis:
		rs, err := localstore.NewRedis(ctx, localstore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.KeyPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open redis storage: %w", err)
		}
		return rs, rs.Close, nil
	case config.StoragePostgres:
		ps, err := localstore.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres storage: %w", err)
		}
		return ps, ps.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
