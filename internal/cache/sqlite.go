// Package cache provides an optional on-disk cache of model records so
// repeated report runs skip re-fetching unchanged models.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/partcli/internal/models"
)

// Store is a SQLite-backed model record cache.
type Store struct {
	db *sql.DB
}

// Open opens or creates the cache database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS model_records (
		tenant TEXT NOT NULL,
		uuid TEXT NOT NULL,
		record TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL,
		PRIMARY KEY (tenant, uuid)
	);

	CREATE INDEX IF NOT EXISTS idx_model_records_fetched_at ON model_records(fetched_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Get returns the cached record for a model, if present and younger than
// maxAge. maxAge zero disables the age check.
func (s *Store) Get(ctx context.Context, tenant string, id uuid.UUID, maxAge time.Duration) (*models.Model, bool, error) {
	var record string
	var fetchedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT record, fetched_at FROM model_records WHERE tenant = ? AND uuid = ?`,
		tenant, id.String(),
	).Scan(&record, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if maxAge > 0 && time.Since(fetchedAt) > maxAge {
		return nil, false, nil
	}
	var m models.Model
	if err := json.Unmarshal([]byte(record), &m); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached record: %w", err)
	}
	return &m, true, nil
}

// Put stores or replaces the record for a model.
func (s *Store) Put(ctx context.Context, tenant string, m *models.Model) error {
	record, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO model_records (tenant, uuid, record, fetched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (tenant, uuid) DO UPDATE SET record = excluded.record, fetched_at = excluded.fetched_at`,
		tenant, m.UUID.String(), string(record), time.Now(),
	)
	return err
}

// Purge removes all cached records for a tenant and returns the count.
func (s *Store) Purge(ctx context.Context, tenant string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM model_records WHERE tenant = ?`, tenant)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the number of cached records for a tenant.
func (s *Store) Count(ctx context.Context, tenant string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM model_records WHERE tenant = ?`, tenant).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
