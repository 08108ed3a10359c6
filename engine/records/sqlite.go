// Package records is the authoritative store of full catalog records.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/WessleyAI/service-catalog/engine/domain"
	"github.com/WessleyAI/service-catalog/pkg/fn"
)

// Store is implemented by every record backend.
type Store interface {
	CreateTable(ctx context.Context) error
	Put(ctx context.Context, rec domain.Record) error
	Get(ctx context.Context, id string) (domain.Record, error)
	Truncate(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*Neo4jStore)(nil)
)

// SQLiteStore keeps records in a single service_catalog table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens or creates the database at dbPath and creates the
// table. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("records: create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("records: open database: %w", err)
	}
	// One writer at a time; sqlite serializes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("records: enable WAL: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.CreateTable(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// CreateTable creates the service_catalog table if it is absent.
func (s *SQLiteStore) CreateTable(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS service_catalog (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		service_content TEXT NOT NULL DEFAULT '',
		target TEXT NOT NULL DEFAULT '',
		conditions TEXT NOT NULL DEFAULT '',
		service_labels TEXT NOT NULL DEFAULT '[]',
		target_labels TEXT NOT NULL DEFAULT '[]',
		raw TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("records: create table: %w", err)
	}
	return nil
}

// Put inserts the record or replaces the row with the same id.
func (s *SQLiteStore) Put(ctx context.Context, rec domain.Record) error {
	serviceLabels, err := json.Marshal(fn.OrEmpty(rec.ServiceLabels))
	if err != nil {
		return fmt.Errorf("records: marshal service labels: %w", err)
	}
	targetLabels, err := json.Marshal(fn.OrEmpty(rec.TargetLabels))
	if err != nil {
		return fmt.Errorf("records: marshal target labels: %w", err)
	}
	var raw sql.NullString
	if len(rec.Raw) > 0 {
		raw = sql.NullString{String: string(rec.Raw), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO service_catalog
		 (id, title, url, service_content, target, conditions, service_labels, target_labels, raw, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.URL, rec.ServiceContent, rec.Target, rec.Conditions,
		string(serviceLabels), string(targetLabels), raw, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("records: put %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with the given id or domain.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Record, error) {
	var (
		rec                         domain.Record
		serviceLabels, targetLabels string
		raw                         sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, url, service_content, target, conditions, service_labels, target_labels, raw, updated_at
		 FROM service_catalog WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Title, &rec.URL, &rec.ServiceContent, &rec.Target, &rec.Conditions,
		&serviceLabels, &targetLabels, &raw, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, fmt.Errorf("records: %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("records: get %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(serviceLabels), &rec.ServiceLabels); err != nil {
		return domain.Record{}, fmt.Errorf("records: unmarshal service labels: %w", err)
	}
	if err := json.Unmarshal([]byte(targetLabels), &rec.TargetLabels); err != nil {
		return domain.Record{}, fmt.Errorf("records: unmarshal target labels: %w", err)
	}
	if raw.Valid {
		rec.Raw = json.RawMessage(raw.String)
	}
	return rec, nil
}

// Truncate deletes every row.
func (s *SQLiteStore) Truncate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM service_catalog`); err != nil {
		return fmt.Errorf("records: truncate: %w", err)
	}
	return nil
}

// Count returns the number of rows.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM service_catalog`).Scan(&n); err != nil {
		return 0, fmt.Errorf("records: count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

