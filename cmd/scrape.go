package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weathertrack/geoscraper/internal/browser"
	"github.com/weathertrack/geoscraper/internal/config"
	"github.com/weathertrack/geoscraper/internal/gitsync"
	"github.com/weathertrack/geoscraper/internal/metrics"
	"github.com/weathertrack/geoscraper/internal/run"
	"github.com/weathertrack/geoscraper/internal/scrape"
	"github.com/weathertrack/geoscraper/internal/snapshot"
	"github.com/weathertrack/geoscraper/internal/store"
)

func newScrapeCmd() *cobra.Command {
	var (
		dryRun  bool
		limit   int
		dbStore bool
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs one full scrape of countries and cities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if dryRun {
				// A visible browser window makes dry runs observable.
				cfg.Browser.Headless = false
			}
			if cmd.Flags().Changed("limit") {
				cfg.Scraper.Limit = limit
			}
			if dbStore {
				cfg.Store.Enabled = true
			}
			if cfg.Store.Enabled && cfg.Store.DSN == "" {
				return errors.New("store.dsn must be set when persistence is requested")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// One-shot runs have no /metrics endpoint, so the final counter
			// values are reported through the log instead.
			registry := prometheus.NewRegistry()
			err = runScrape(ctx, cfg, metrics.New(registry), logger)
			if counts, serr := metrics.Snapshot(registry); serr == nil {
				logger.Info("run counters", zap.Any("counters", counts))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run with a visible browser window")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of countries processed (0 = unlimited)")
	cmd.Flags().BoolVar(&dbStore, "db-store", false, "persist scraped data to Postgres")
	return cmd
}

// browserPages adapts the session manager to the orchestrator's page
// source.
type browserPages struct {
	m *browser.Manager
}

func (p browserPages) Page() scrape.Page { return p.m.Page() }

func (p browserPages) Restart(ctx context.Context) error { return p.m.Restart(ctx) }

func runScrape(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *zap.Logger) error {
	manager, err := browser.NewManager(browser.Config{
		Headless:       cfg.Browser.Headless,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		NavTimeout:     cfg.Browser.NavTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer manager.Close()

	locator := scrape.NewLocator(cfg.Scraper.RetryPauseMin, cfg.Scraper.RetryPauseMax, logger)
	crawler, err := scrape.New(scrape.Config{
		BaseURL:        cfg.Scraper.BaseURL,
		LocatorTimeout: cfg.Scraper.LocatorTimeout,
		ProbeTimeout:   cfg.Scraper.ProbeTimeout,
		Delays: scrape.Delays{
			SettleMin:  cfg.Scraper.SettleMin,
			SettleMax:  cfg.Scraper.SettleMax,
			SectionMin: cfg.Scraper.SectionMin,
			SectionMax: cfg.Scraper.SectionMax,
			LetterMin:  cfg.Scraper.LetterMin,
			LetterMax:  cfg.Scraper.LetterMax,
		},
	}, locator, logger)
	if err != nil {
		return fmt.Errorf("build scraper: %w", err)
	}

	var persister run.Persister
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
		persister = db
	}

	var syncer run.Syncer
	if cfg.Git.Enabled {
		syncer = gitsync.New(cfg.Git, cfg.Snapshot.Dir, nil, logger)
	}

	runner := run.New(run.Config{
		Limit:           cfg.Scraper.Limit,
		CountryAttempts: cfg.Scraper.CountryAttempts,
		PauseMin:        cfg.Scraper.CountryPauseMin,
		PauseMax:        cfg.Scraper.CountryPauseMax,
	}, browserPages{m: manager}, crawler, persister, snapshot.NewWriter(cfg.Snapshot.Dir), syncer, m, nil, logger)

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scrape run: %w", err)
	}
	return nil
}
