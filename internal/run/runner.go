// Package run sequences one scrape run: phase 1 countries, phase 2 cities
// per country, with the restart/retry policy and the snapshot artifact
// lifecycle (incremental writes, commit on success, discard on failure).
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/weathertrack/geoscraper/internal/browser"
	"github.com/weathertrack/geoscraper/internal/metrics"
	"github.com/weathertrack/geoscraper/internal/scrape"
	"github.com/weathertrack/geoscraper/internal/snapshot"
	"github.com/weathertrack/geoscraper/internal/store"
)

// ErrNoCountries marks the terminal condition of a clean but empty country
// phase; it is distinct from a crawl failure and never triggers a restart.
var ErrNoCountries = errors.New("no countries scraped")

// Pages hands out the current page handle and replaces the browser session
// on demand. Only the Runner decides when to restart.
type Pages interface {
	Page() scrape.Page
	Restart(ctx context.Context) error
}

// Crawler drives the two scrape phases.
type Crawler interface {
	Countries(ctx context.Context, page scrape.Page) ([]scrape.Entry, error)
	Cities(ctx context.Context, page scrape.Page, countryURL, countryName string) ([]scrape.Entry, error)
}

// Persister reconciles scraped batches into the relational store.
type Persister interface {
	UpsertCountries(ctx context.Context, entries []scrape.Entry) (map[string]string, store.UpsertStats, error)
	UpsertCities(ctx context.Context, countryID string, entries []scrape.Entry) (store.UpsertStats, error)
}

// Snapshotter owns the dated artifact for the run.
type Snapshotter interface {
	Write(date time.Time, records []snapshot.CountryRecord) error
	Discard(date time.Time) error
}

// Syncer pushes the data directory to durable storage after a successful run.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Config bounds the run.
type Config struct {
	// Limit caps the number of countries processed in phase 2; zero means
	// unlimited.
	Limit int
	// CountryAttempts bounds per-country city scrape attempts.
	CountryAttempts int
	// PauseMin/PauseMax bound the jittered delay between countries.
	PauseMin time.Duration
	PauseMax time.Duration
}

// Runner executes scrape runs. The persister and syncer may be nil for
// snapshot-only operation.
type Runner struct {
	cfg       Config
	pages     Pages
	crawler   Crawler
	persister Persister
	snap      Snapshotter
	syncer    Syncer
	metrics   *metrics.Metrics
	clock     clockwork.Clock
	logger    *zap.Logger
}

// New constructs a Runner.
func New(
	cfg Config,
	pages Pages,
	crawler Crawler,
	persister Persister,
	snap Snapshotter,
	syncer Syncer,
	m *metrics.Metrics,
	clock clockwork.Clock,
	logger *zap.Logger,
) *Runner {
	if cfg.CountryAttempts <= 0 {
		cfg.CountryAttempts = 2
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		cfg:       cfg,
		pages:     pages,
		crawler:   crawler,
		persister: persister,
		snap:      snap,
		syncer:    syncer,
		metrics:   m,
		clock:     clock,
		logger:    logger,
	}
}

// Run executes one full scrape run. On any terminal failure the run's
// snapshot artifact is discarded so a partial run never masquerades as a
// completed one.
func (r *Runner) Run(ctx context.Context) error {
	date := r.clock.Now().UTC()
	r.logger.Info("scrape run starting", zap.String("run_date", date.Format("2006-01-02")))

	if err := r.execute(ctx, date); err != nil {
		r.metrics.RunsTotal.WithLabelValues("failure").Inc()
		if derr := r.snap.Discard(date); derr != nil {
			r.logger.Error("failed to discard snapshot after run failure", zap.Error(derr))
		}
		return err
	}
	r.metrics.RunsTotal.WithLabelValues("success").Inc()
	return nil
}

func (r *Runner) execute(ctx context.Context, date time.Time) error {
	countries, err := r.scrapeCountriesWithRestart(ctx)
	if err != nil {
		return err
	}
	if len(countries) == 0 {
		return ErrNoCountries
	}
	r.metrics.CountriesScraped.Add(float64(len(countries)))

	ids := map[string]string{}
	if r.persister != nil {
		var stats store.UpsertStats
		ids, stats, err = r.persister.UpsertCountries(ctx, countries)
		if err != nil {
			// The batch rolled back; the run continues snapshot-only since
			// no country will resolve an identity.
			r.logger.Error("country reconciliation failed", zap.Error(err))
			ids = map[string]string{}
		} else {
			r.recordUpserts("country", stats)
		}
	}

	toProcess := countries
	if r.cfg.Limit > 0 && len(toProcess) > r.cfg.Limit {
		r.logger.Info("country processing limited", zap.Int("limit", r.cfg.Limit))
		toProcess = toProcess[:r.cfg.Limit]
	}

	records := make([]snapshot.CountryRecord, 0, len(toProcess))
	for i, country := range toProcess {
		countryID := ""
		if r.persister != nil {
			id, ok := ids[country.Name]
			if !ok {
				r.logger.Warn("skipping country without identity",
					zap.String("country", country.Name))
				r.metrics.CountriesSkipped.Inc()
				continue
			}
			countryID = id
		}
		if country.URL == nil {
			r.logger.Warn("skipping country without url",
				zap.String("country", country.Name))
			r.metrics.CountriesSkipped.Inc()
			continue
		}

		cities, ok, err := r.scrapeCountryCities(ctx, country)
		if err != nil {
			return err
		}
		if !ok {
			r.logger.Error("giving up on country after all attempts",
				zap.String("country", country.Name),
				zap.Int("attempts", r.cfg.CountryAttempts))
			continue
		}
		r.metrics.CitiesScraped.Add(float64(len(cities)))

		if r.persister != nil && len(cities) > 0 {
			stats, uerr := r.persister.UpsertCities(ctx, countryID, cities)
			if uerr != nil {
				r.logger.Error("city reconciliation failed",
					zap.String("country", country.Name), zap.Error(uerr))
			} else {
				r.recordUpserts("city", stats)
				r.logger.Info("cities reconciled",
					zap.String("country", country.Name),
					zap.Int("processed", stats.Processed),
					zap.Int("inserted", stats.Inserted),
					zap.Int("updated", stats.Updated),
					zap.Int("existing", stats.Existing))
			}
		}

		records = append(records, countryRecord(country, cities))
		if err := r.snap.Write(date, records); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}

		if i < len(toProcess)-1 {
			scrape.Pause(ctx, r.cfg.PauseMin, r.cfg.PauseMax)
		}
	}

	if r.syncer != nil {
		if err := r.syncer.Sync(ctx); err != nil {
			r.logger.Warn("data sync failed", zap.Error(err))
		}
	}

	r.logger.Info("scrape run complete",
		zap.Int("countries_scraped", len(countries)),
		zap.Int("countries_processed", len(records)))
	return nil
}

// scrapeCountriesWithRestart runs phase 1 with exactly one
// restart-and-retry; a second failure is run-terminal.
func (r *Runner) scrapeCountriesWithRestart(ctx context.Context) ([]scrape.Entry, error) {
	countries, err := r.crawler.Countries(ctx, r.pages.Page())
	if err == nil {
		return countries, nil
	}
	r.logger.Warn("country phase failed, restarting browser", zap.Error(err))
	r.metrics.SessionRestarts.Inc()
	if rerr := r.pages.Restart(ctx); rerr != nil {
		return nil, fmt.Errorf("restart after country phase failure: %w", rerr)
	}
	countries, err = r.crawler.Countries(ctx, r.pages.Page())
	if err != nil {
		return nil, fmt.Errorf("country phase failed after restart: %w", err)
	}
	return countries, nil
}

// attemptOutcome tags the result of one city scrape attempt so the retry
// loop branches on data instead of control-flow exceptions.
type attemptOutcome int

const (
	attemptOK attemptOutcome = iota
	attemptRetry
	attemptRestartAndRetry
)

func classifyAttempt(err error) attemptOutcome {
	switch {
	case err == nil:
		return attemptOK
	case errors.Is(err, browser.ErrSessionLost):
		return attemptRestartAndRetry
	default:
		return attemptRetry
	}
}

// scrapeCountryCities makes bounded attempts for one country. Session loss
// restarts the browser before the next attempt. Exhaustion returns ok=false
// and is non-fatal to the run; only a failed restart or cancellation
// returns an error.
func (r *Runner) scrapeCountryCities(ctx context.Context, country scrape.Entry) ([]scrape.Entry, bool, error) {
	for attempt := 1; attempt <= r.cfg.CountryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		cities, err := r.crawler.Cities(ctx, r.pages.Page(), *country.URL, country.Name)
		switch classifyAttempt(err) {
		case attemptOK:
			return cities, true, nil
		case attemptRestartAndRetry:
			r.logger.Warn("session lost during city scrape",
				zap.String("country", country.Name),
				zap.Int("attempt", attempt),
				zap.Error(err))
			r.metrics.SessionRestarts.Inc()
			if rerr := r.pages.Restart(ctx); rerr != nil {
				return nil, false, fmt.Errorf("restart during city phase: %w", rerr)
			}
		default:
			r.logger.Warn("city scrape attempt failed",
				zap.String("country", country.Name),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
	}
	return nil, false, nil
}

func (r *Runner) recordUpserts(entity string, stats store.UpsertStats) {
	r.metrics.UpsertsTotal.WithLabelValues(entity, "inserted").Add(float64(stats.Inserted))
	r.metrics.UpsertsTotal.WithLabelValues(entity, "updated").Add(float64(stats.Updated))
	r.metrics.UpsertsTotal.WithLabelValues(entity, "existing").Add(float64(stats.Existing))
	r.metrics.UpsertsTotal.WithLabelValues(entity, "skipped").Add(float64(stats.Skipped))
}

func countryRecord(country scrape.Entry, cities []scrape.Entry) snapshot.CountryRecord {
	record := snapshot.CountryRecord{
		Country: country.Name,
		URL:     country.URL,
		Cities:  make([]snapshot.CityEntry, 0, len(cities)),
	}
	for _, city := range cities {
		record.Cities = append(record.Cities, snapshot.CityEntry{Name: city.Name, URL: city.URL})
	}
	return record
}
