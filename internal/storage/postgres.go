package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	postgresDriver     = "pgx"
	defaultPostgresDSN = "postgres://localhost/nichemodeller?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// PostgresStore keeps records as JSONB payloads.
type PostgresStore struct {
	dsn string
	sqlStore
}

// NewPostgresStore falls back to a local database when dsn is empty.
func NewPostgresStore(dsn string) *PostgresStore {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	return &PostgresStore{dsn: dsn, sqlStore: sqlStore{dollar: true}}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	openMu.Lock()
	db, err := sqlOpen(postgresDriver, s.dsn)
	openMu.Unlock()
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := execStatements(ctx, db, postgresTables); err != nil {
		_ = db.Close()
		return fmt.Errorf("create postgres tables: %w", err)
	}

	s.db = db
	return nil
}

var postgresTables = []string{
	`CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		schema_version INTEGER NOT NULL,
		codec_version INTEGER NOT NULL,
		payload JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS projections (
		id TEXT PRIMARY KEY,
		model_id TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		codec_version INTEGER NOT NULL,
		payload JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS projections_model_id ON projections (model_id)`,
	`CREATE TABLE IF NOT EXISTS progress_history (
		model_id TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`,
}

// overrideSQLOpen swaps the opener for tests and returns a restore function.
func overrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
