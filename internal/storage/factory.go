package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Config controls how the storage backend is opened.
type Config struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

// Open constructs a Storage based on the given configuration.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (Storage, error) {
	drv := cfg.Driver
	if drv == "" {
		drv = "memory"
	}
	switch drv {
	case "memory":
		log.Info("using in-memory storage backend")
		return NewMemory(), nil

	case "sqlite", "postgres":
		log.Info("using gorm storage backend", zap.String("driver", drv))
		st, err := NewGormStorage(drv, cfg.DSN, log)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := st.Migrate(ctx); err != nil {
				st.Close()
				return nil, fmt.Errorf("storage migrate: %w", err)
			}
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", drv)
	}
}
