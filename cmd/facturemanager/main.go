package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ttsites/facturemanager/internal/config"
	"github.com/ttsites/facturemanager/internal/logger"
	"github.com/ttsites/facturemanager/internal/migrate"
	"github.com/ttsites/facturemanager/internal/settings"
	"github.com/ttsites/facturemanager/internal/storage"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "facturemanager",
		Short:         "Electricity bill pricing service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./configs", "directory holding config.yaml")

	root.AddCommand(newServeCmd(), newCalcCmd(), newMigrateCmd(), newAuditCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	store    storage.Storage
	settings *settings.Provider
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if cfg.ConfigFile != "" {
		log.Info("configuration loaded", zap.String("file", cfg.ConfigFile))
	}

	db := cfg.Database
	if db.AutoMigrate && db.Driver != "memory" {
		if err := migrate.Up(ctx, db.Driver, db.DSN); err != nil {
			return nil, fmt.Errorf("auto-migration failed: %w", err)
		}
		log.Info("database migrated", zap.String("driver", db.Driver))
	}
	// goose owns the schema; gorm only maps onto it
	st, err := storage.Open(ctx, storage.Config{Driver: db.Driver, DSN: db.DSN}, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	prov := settings.NewProvider(settings.Config{
		SettingsFile: cfg.Tariff.SettingsFile,
		PDFPath:      cfg.Tariff.PDFPath,
	}, st, log)

	return &app{cfg: cfg, log: log, store: st, settings: prov}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("close storage", zap.Error(err))
	}
	_ = a.log.Sync()
}
