package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"nichemodeller/internal/model"
)

// sqlStore holds the queries shared by the database backends. Queries are
// written with ? placeholders and rebound per driver.
type sqlStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dollar bool
}

func (s *sqlStore) SaveModel(ctx context.Context, record model.ModelRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeModel(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, s.rebind(`
		INSERT INTO models (id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`), record.ID, record.SchemaVersion, record.CodecVersion, payload)
	return err
}

func (s *sqlStore) GetModel(ctx context.Context, id string) (model.ModelRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ModelRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, s.rebind(`SELECT payload FROM models WHERE id = ?`), id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ModelRecord{}, false, nil
		}
		return model.ModelRecord{}, false, err
	}

	record, err := DecodeModel(payload)
	if err != nil {
		return model.ModelRecord{}, false, fmt.Errorf("decode model %s: %w", id, err)
	}
	return record, true, nil
}

func (s *sqlStore) ListModels(ctx context.Context) ([]model.ModelRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM models`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]model.ModelRecord, 0)
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		record, err := DecodeModel(payload)
		if err != nil {
			return nil, fmt.Errorf("decode model %s: %w", id, err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortModels(out)
	return out, nil
}

func (s *sqlStore) DeleteModel(ctx context.Context, id string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		`DELETE FROM projections WHERE model_id = ?`,
		`DELETE FROM progress_history WHERE model_id = ?`,
		`DELETE FROM models WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.rebind(stmt), id); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqlStore) SaveProjection(ctx context.Context, record model.ProjectionRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeProjection(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, s.rebind(`
		INSERT INTO projections (id, model_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			model_id = excluded.model_id,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`), record.ID, record.ModelID, record.SchemaVersion, record.CodecVersion, payload)
	return err
}

func (s *sqlStore) GetProjection(ctx context.Context, id string) (model.ProjectionRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ProjectionRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, s.rebind(`SELECT payload FROM projections WHERE id = ?`), id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ProjectionRecord{}, false, nil
		}
		return model.ProjectionRecord{}, false, err
	}

	record, err := DecodeProjection(payload)
	if err != nil {
		return model.ProjectionRecord{}, false, fmt.Errorf("decode projection %s: %w", id, err)
	}
	return record, true, nil
}

func (s *sqlStore) ListProjections(ctx context.Context, modelID string) ([]model.ProjectionRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if modelID == "" {
		rows, err = db.QueryContext(ctx, `SELECT id, payload FROM projections`)
	} else {
		rows, err = db.QueryContext(ctx, s.rebind(`SELECT id, payload FROM projections WHERE model_id = ?`), modelID)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]model.ProjectionRecord, 0)
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		record, err := DecodeProjection(payload)
		if err != nil {
			return nil, fmt.Errorf("decode projection %s: %w", id, err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortProjections(out)
	return out, nil
}

func (s *sqlStore) SaveProgressHistory(ctx context.Context, modelID string, history []float64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeProgressHistory(history)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, s.rebind(`
		INSERT INTO progress_history (model_id, payload)
		VALUES (?, ?)
		ON CONFLICT(model_id) DO UPDATE SET
			payload = excluded.payload
	`), modelID, payload)
	return err
}

func (s *sqlStore) GetProgressHistory(ctx context.Context, modelID string) ([]float64, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, s.rebind(`SELECT payload FROM progress_history WHERE model_id = ?`), modelID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	history, err := DecodeProgressHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode progress history %s: %w", modelID, err)
	}
	return history, true, nil
}

func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *sqlStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

// rebind turns ? placeholders into $n for drivers that need them.
func (s *sqlStore) rebind(query string) string {
	if !s.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

func execStatements(ctx context.Context, db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
