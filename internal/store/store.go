// Package store reconciles scraped entities into Postgres. Identity is
// name-based: countries by name, cities by (name, country). Upserts are
// insert-if-absent, update-if-url-changed, no-op-if-identical, batched into
// single transactions with rollback on any error.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it
// for tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// UpsertStats reports the outcome of one upsert batch.
type UpsertStats struct {
	Processed int
	Inserted  int
	Updated   int
	Existing  int
	Skipped   int
}

// Country is a persisted country row.
type Country struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	URL  *string `json:"url"`
}

// City is a persisted city row.
type City struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	URL  *string `json:"url"`
}
