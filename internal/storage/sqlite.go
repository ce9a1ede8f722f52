//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string
	sqlStore
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := execStatements(ctx, db, sqliteTables); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

var sqliteTables = []string{
	`CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		schema_version INTEGER NOT NULL,
		codec_version INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS projections (
		id TEXT PRIMARY KEY,
		model_id TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		codec_version INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS projections_model_id ON projections (model_id)`,
	`CREATE TABLE IF NOT EXISTS progress_history (
		model_id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`,
}
