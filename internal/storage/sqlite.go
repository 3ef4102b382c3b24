//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/mpjuers/transmission/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
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
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS training_runs (
			run_id TEXT PRIMARY KEY,
			created_at_utc TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS posteriors (
			run_id TEXT PRIMARY KEY,
			created_at_utc TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) SaveTrainingRun(ctx context.Context, run model.TrainingRun) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeTrainingRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO training_runs (run_id, created_at_utc, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, run.RunID, run.CreatedAtUTC, run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetTrainingRun(ctx context.Context, runID string) (model.TrainingRun, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.TrainingRun{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM training_runs WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TrainingRun{}, false, nil
		}
		return model.TrainingRun{}, false, err
	}

	run, err := DecodeTrainingRun(payload)
	if err != nil {
		return model.TrainingRun{}, false, fmt.Errorf("decode training run %s: %w", runID, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) LatestTrainingRun(ctx context.Context) (model.TrainingRun, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.TrainingRun{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx,
		`SELECT payload FROM training_runs ORDER BY created_at_utc DESC, run_id DESC LIMIT 1`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TrainingRun{}, false, nil
		}
		return model.TrainingRun{}, false, err
	}

	run, err := DecodeTrainingRun(payload)
	if err != nil {
		return model.TrainingRun{}, false, fmt.Errorf("decode latest training run: %w", err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListTrainingRuns(ctx context.Context, limit int) ([]model.TrainingRun, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	query := `SELECT payload FROM training_runs ORDER BY created_at_utc DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TrainingRun
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		run, err := DecodeTrainingRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode training run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SavePosterior(ctx context.Context, record model.PosteriorRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodePosterior(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO posteriors (run_id, created_at_utc, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, record.RunID, record.CreatedAtUTC, record.SchemaVersion, record.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetPosterior(ctx context.Context, runID string) (model.PosteriorRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.PosteriorRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM posteriors WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PosteriorRecord{}, false, nil
		}
		return model.PosteriorRecord{}, false, err
	}

	record, err := DecodePosterior(payload)
	if err != nil {
		return model.PosteriorRecord{}, false, fmt.Errorf("decode posterior %s: %w", runID, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}
