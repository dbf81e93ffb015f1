package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ttsites/facturemanager/internal/alerting"
	"github.com/ttsites/facturemanager/internal/api"
	"github.com/ttsites/facturemanager/internal/audit"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background audit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := a.cfg
	mux := api.NewMux(api.Options{
		Store:             a.store,
		Settings:          a.settings,
		UploadDir:         cfg.Tariff.UploadDir,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Logger:            a.log,
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var wg sync.WaitGroup
	if cfg.Audit.Enabled {
		alertCfg := alerting.FromConfig(cfg.Alerting)
		var notifier audit.Notifier
		if alertCfg.Enabled() {
			notifier = alerting.NewAlerter(alertCfg, a.log)
		} else {
			a.log.Info("alerting not configured, drift will only be logged")
		}
		auditor, err := audit.New(audit.Config{
			Schedule:  cfg.Audit.Schedule,
			Tolerance: cfg.Audit.Tolerance,
		}, a.store, a.settings, notifier, a.log)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := auditor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("audit worker stopped", zap.Error(err))
				return
			}
			a.log.Info("audit worker stopped")
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}
	// the audit worker must be gone before the caller closes the store
	cancel()

	if serveErr == nil {
		a.log.Info("shutting down server")
		shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("error during HTTP server shutdown", zap.Error(err))
		}
	}
	wg.Wait()
	if serveErr != nil {
		return serveErr
	}
	a.log.Info("server exited")
	return nil
}
