package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/weathertrack/geoscraper/internal/scrape"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN               string
	MaxConns          int32
	MaxConnLifetime   time.Duration
	ExcludedCountries []string
}

// Store persists scraped countries and cities.
//
// Expected schema:
//
//	CREATE TABLE countries (
//		id TEXT PRIMARY KEY,
//		name TEXT NOT NULL UNIQUE,
//		url TEXT,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE TABLE cities (
//		id TEXT PRIMARY KEY,
//		name TEXT NOT NULL,
//		url TEXT,
//		country_id TEXT NOT NULL REFERENCES countries (id) ON DELETE CASCADE,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		UNIQUE (name, country_id)
//	);
type Store struct {
	db       DB
	excluded map[string]struct{}
	logger   *zap.Logger
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewWithDB(pool, cfg.ExcludedCountries, logger), nil
}

// NewWithDB constructs a store from an existing pool (primarily for testing).
func NewWithDB(db DB, excludedCountries []string, logger *zap.Logger) *Store {
	excluded := make(map[string]struct{}, len(excludedCountries))
	for _, name := range excludedCountries {
		excluded[name] = struct{}{}
	}
	return &Store{db: db, excluded: excluded, logger: logger}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// UpsertCountries reconciles the scraped country batch in one transaction
// and returns a mapping from country name to its row identity for the city
// phase. Excluded names are skipped at this layer only; the crawl and
// snapshot paths see the full set.
func (s *Store) UpsertCountries(ctx context.Context, entries []scrape.Entry) (map[string]string, UpsertStats, error) {
	ids := make(map[string]string, len(entries))
	var stats UpsertStats

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("begin country batch: %w", err)
	}

	for _, entry := range entries {
		stats.Processed++
		if _, skip := s.excluded[entry.Name]; skip {
			stats.Skipped++
			continue
		}

		var (
			id     string
			stored *string
		)
		err := tx.QueryRow(ctx,
			`SELECT id, url FROM countries WHERE name = $1`, entry.Name,
		).Scan(&id, &stored)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			id = uuid.NewString()
			if _, err := tx.Exec(ctx,
				`INSERT INTO countries (id, name, url) VALUES ($1, $2, $3)`,
				id, entry.Name, entry.URL,
			); err != nil {
				_ = tx.Rollback(ctx)
				return nil, stats, fmt.Errorf("insert country %q: %w", entry.Name, err)
			}
			stats.Inserted++
		case err != nil:
			_ = tx.Rollback(ctx)
			return nil, stats, fmt.Errorf("look up country %q: %w", entry.Name, err)
		case !sameURL(stored, entry.URL):
			if _, err := tx.Exec(ctx,
				`UPDATE countries SET url = $2, updated_at = NOW() WHERE id = $1`,
				id, entry.URL,
			); err != nil {
				_ = tx.Rollback(ctx)
				return nil, stats, fmt.Errorf("update country %q: %w", entry.Name, err)
			}
			stats.Updated++
		default:
			stats.Existing++
		}
		ids[entry.Name] = id
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, stats, fmt.Errorf("commit country batch: %w", err)
	}

	s.logger.Info("countries reconciled",
		zap.Int("processed", stats.Processed),
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("existing", stats.Existing),
		zap.Int("skipped", stats.Skipped),
	)
	return ids, stats, nil
}

// UpsertCities reconciles one country's scraped city batch in a single
// transaction. The parent country row must already exist; a foreign-key
// violation rolls the batch back.
func (s *Store) UpsertCities(ctx context.Context, countryID string, entries []scrape.Entry) (UpsertStats, error) {
	var stats UpsertStats
	if countryID == "" {
		return stats, fmt.Errorf("country id is required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("begin city batch: %w", err)
	}

	for _, entry := range entries {
		stats.Processed++

		var (
			id     string
			stored *string
		)
		err := tx.QueryRow(ctx,
			`SELECT id, url FROM cities WHERE name = $1 AND country_id = $2`,
			entry.Name, countryID,
		).Scan(&id, &stored)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if _, err := tx.Exec(ctx,
				`INSERT INTO cities (id, name, url, country_id) VALUES ($1, $2, $3, $4)`,
				uuid.NewString(), entry.Name, entry.URL, countryID,
			); err != nil {
				_ = tx.Rollback(ctx)
				return stats, fmt.Errorf("insert city %q: %w", entry.Name, err)
			}
			stats.Inserted++
		case err != nil:
			_ = tx.Rollback(ctx)
			return stats, fmt.Errorf("look up city %q: %w", entry.Name, err)
		case !sameURL(stored, entry.URL):
			if _, err := tx.Exec(ctx,
				`UPDATE cities SET url = $2, updated_at = NOW() WHERE id = $1`,
				id, entry.URL,
			); err != nil {
				_ = tx.Rollback(ctx)
				return stats, fmt.Errorf("update city %q: %w", entry.Name, err)
			}
			stats.Updated++
		default:
			stats.Existing++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return stats, fmt.Errorf("commit city batch: %w", err)
	}
	return stats, nil
}

// ListCountries returns all persisted countries ordered by name.
func (s *Store) ListCountries(ctx context.Context) ([]Country, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, url FROM countries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	defer rows.Close()

	var countries []Country
	for rows.Next() {
		var c Country
		if err := rows.Scan(&c.ID, &c.Name, &c.URL); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate countries: %w", err)
	}
	return countries, nil
}

// CitiesByCountry returns the cities recorded under the named country,
// ordered by name. An unknown country yields an empty slice.
func (s *Store) CitiesByCountry(ctx context.Context, countryName string) ([]City, error) {
	rows, err := s.db.Query(ctx, `
SELECT c.id, c.name, c.url
FROM cities c
JOIN countries co ON co.id = c.country_id
WHERE co.name = $1
ORDER BY c.name`, countryName)
	if err != nil {
		return nil, fmt.Errorf("list cities for %q: %w", countryName, err)
	}
	defer rows.Close()

	var cities []City
	for rows.Next() {
		var c City
		if err := rows.Scan(&c.ID, &c.Name, &c.URL); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cities: %w", err)
	}
	return cities, nil
}

func sameURL(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
