package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weathertrack/geoscraper/internal/api"
	"github.com/weathertrack/geoscraper/internal/config"
	"github.com/weathertrack/geoscraper/internal/metrics"
	"github.com/weathertrack/geoscraper/internal/schedule"
	"github.com/weathertrack/geoscraper/internal/snapshot"
	"github.com/weathertrack/geoscraper/internal/store"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the read API and, when enabled, the recurring scrape schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, logger)
		},
	}
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	// One registry backs both the /metrics endpoint and every scheduled
	// run, so pipeline counters accumulate where they can be scraped.
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var countryStore api.CountryStore
	if cfg.Store.Enabled {
		db, err := store.New(ctx, store.Config{
			DSN:               cfg.Store.DSN,
			MaxConns:          cfg.Store.MaxConns,
			ExcludedCountries: cfg.Store.ExcludedCountries,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect store: %w", err)
		}
		defer db.Close()
		countryStore = db
	}

	server := api.NewServer(
		countryStore,
		snapshot.NewWriter(cfg.Snapshot.Dir),
		registry,
		cfg.Auth,
		logger,
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.Schedule.Enabled {
		scheduler := schedule.New(cfg.Schedule, func(ctx context.Context) error {
			return runScrape(ctx, cfg, m, logger)
		}, nil, logger)
		go func() {
			if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler stopped", zap.Error(err))
			}
		}()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	logger.Info("api server stopped")
	return nil
}
