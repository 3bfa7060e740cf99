// Package sqlite provides a SQLite-backed implementation of the
// source.Store interface. Records are stored as JSON documents; predicate
// evaluation happens in Go over the decoded documents, which keeps the
// filter semantics identical across adapters.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/procagent/procagent/pkg/source"
)

// SQLiteStore implements the source.Store interface using a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore with the given database
// connection and ensures the schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Open opens the SQLite database at path and returns a ready store.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS source_records (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)
	`)
	return err
}

// Insert adds records to the store.
func (s *SQLiteStore) Insert(ctx context.Context, records ...source.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO source_records (id, data) VALUES (?, ?)`,
			uuid.New().String(), data,
		); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	return tx.Commit()
}

// Execute implements the source.Store interface.
func (s *SQLiteStore) Execute(ctx context.Context, spec source.QuerySpec) ([]source.Record, error) {
	records, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return source.Evaluate(records, spec)
}

// Count implements the source.Store interface.
func (s *SQLiteStore) Count(ctx context.Context, spec source.QuerySpec) (int, error) {
	records, err := s.loadAll(ctx)
	if err != nil {
		return 0, err
	}
	return source.EvaluateCount(records, spec)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) loadAll(ctx context.Context) ([]source.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM source_records`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []source.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		var record source.Record
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return records, nil
}
