// Package pgvector provides a PostgreSQL pgvector implementation of the
// longterm.Store interface.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procagent/procagent/pkg/log"
	"github.com/procagent/procagent/pkg/mem/longterm"
	"github.com/procagent/procagent/pkg/session"
)

// ErrPgvectorUnavailable is returned when the pgvector client is unavailable.
var ErrPgvectorUnavailable = errors.New("pgvector client unavailable")

// Config contains the configuration for the pgvector adapter.
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// TableName is the name of the table to use
	TableName string

	// DimensionSize is the size of vector embeddings
	DimensionSize int

	// DistanceMetric is the distance metric to use (cosine, euclidean, dot)
	DistanceMetric string
}

// PgvectorStore implements the longterm.Store interface using PostgreSQL
// with the pgvector extension.
type PgvectorStore struct {
	db             *pgxpool.Pool
	tableName      string
	dimensionSize  int
	distanceMetric string
}

// NewPgvectorStore creates a new adapter for PostgreSQL with pgvector.
func NewPgvectorStore(ctx context.Context, config Config) (*PgvectorStore, error) {
	if config.ConnectionString == "" {
		return nil, errors.New("connection string cannot be empty")
	}

	if config.TableName == "" {
		config.TableName = "semantic_memory"
	}

	if config.DimensionSize <= 0 {
		config.DimensionSize = 384
	}

	if config.DistanceMetric == "" {
		config.DistanceMetric = "cosine"
	} else {
		config.DistanceMetric = strings.ToLower(config.DistanceMetric)
		if config.DistanceMetric != "cosine" && config.DistanceMetric != "euclidean" && config.DistanceMetric != "dot" {
			return nil, fmt.Errorf("unsupported distance metric: %s (must be cosine, euclidean, or dot)", config.DistanceMetric)
		}
	}

	db, err := pgxpool.New(ctx, config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PgvectorStore{
		db:             db,
		tableName:      config.TableName,
		dimensionSize:  config.DimensionSize,
		distanceMetric: config.DistanceMetric,
	}

	if err := store.initializeTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize pgvector table: %w", err)
	}

	return store, nil
}

// initializeTable creates the table and indices for vector storage if they
// don't exist.
func (s *PgvectorStore) initializeTable(ctx context.Context) error {
	var extensionExists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&extensionExists)
	if err != nil {
		return fmt.Errorf("failed to check for pgvector extension: %w", err)
	}

	if !extensionExists {
		_, err = s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
		if err != nil {
			return fmt.Errorf("failed to create pgvector extension: %w", err)
		}
		log.Info("Created pgvector extension")
	}

	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			query TEXT NOT NULL,
			response TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)
	`, s.tableName, s.dimensionSize))
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	var vectorOps string
	switch s.distanceMetric {
	case "cosine":
		vectorOps = "vector_cosine_ops"
	case "euclidean":
		vectorOps = "vector_l2_ops"
	case "dot":
		vectorOps = "vector_ip_ops"
	}

	indices := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_session_id_idx ON %s (session_id)", s.tableName, s.tableName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_created_at_idx ON %s (created_at)", s.tableName, s.tableName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING ivfflat (embedding %s) WITH (lists = 100)",
			s.tableName, s.tableName, vectorOps),
	}

	for _, idx := range indices {
		if _, err := s.db.Exec(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Store persists an entry with its precomputed embedding.
func (s *PgvectorStore) Store(ctx context.Context, entry longterm.Entry) (string, error) {
	if s.db == nil {
		return "", ErrPgvectorUnavailable
	}

	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return "", session.ErrMissingSessionContext
	}

	if len(entry.Embedding) == 0 {
		return "", errors.New("entry must have an embedding")
	}
	if len(entry.Embedding) != s.dimensionSize {
		return "", fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(entry.Embedding), s.dimensionSize)
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SessionID == "" {
		entry.SessionID = sessCtx.SessionID
	}
	if entry.UserID == "" {
		entry.UserID = sessCtx.UserID
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, session_id, user_id, query, response, category, embedding, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8)
		ON CONFLICT (id) DO UPDATE SET
			session_id = $2,
			user_id = $3,
			query = $4,
			response = $5,
			category = $6,
			embedding = $7::vector
	`, s.tableName),
		entry.ID,
		string(entry.SessionID),
		entry.UserID,
		entry.Query,
		entry.Response,
		entry.Category,
		embedToString(entry.Embedding),
		entry.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to store entry: %w", err)
	}

	log.Debug("Stored long-term entry in pgvector",
		"id", entry.ID,
		"session_id", entry.SessionID,
		"table", s.tableName)

	return entry.ID, nil
}

// Similar returns up to limit entries most similar to the probe embedding.
func (s *PgvectorStore) Similar(ctx context.Context, embedding []float32, limit int) ([]longterm.Match, error) {
	if s.db == nil {
		return nil, ErrPgvectorUnavailable
	}

	if len(embedding) == 0 {
		return nil, errors.New("probe embedding cannot be empty")
	}
	if len(embedding) != s.dimensionSize {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(embedding), s.dimensionSize)
	}

	if limit <= 0 {
		limit = 3
	}

	var distanceExpr, similarityExpr string
	switch s.distanceMetric {
	case "cosine":
		distanceExpr = "embedding <=> $1::vector"
		similarityExpr = "1 - (embedding <=> $1::vector)"
	case "euclidean":
		distanceExpr = "embedding <-> $1::vector"
		similarityExpr = "-(embedding <-> $1::vector)"
	case "dot":
		distanceExpr = "embedding <#> $1::vector"
		similarityExpr = "-(embedding <#> $1::vector)"
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT id, session_id, user_id, query, response, category, created_at, %s
		FROM %s
		ORDER BY %s, created_at DESC
		LIMIT $2
	`, similarityExpr, s.tableName, distanceExpr),
		embedToString(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to perform semantic search: %w", err)
	}
	defer rows.Close()

	var matches []longterm.Match
	for rows.Next() {
		var match longterm.Match
		var sessionIDStr string
		var similarity float64

		err := rows.Scan(
			&match.ID,
			&sessionIDStr,
			&match.UserID,
			&match.Query,
			&match.Response,
			&match.Category,
			&match.CreatedAt,
			&similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		match.SessionID = session.ID(sessionIDStr)
		match.Similarity = float32(similarity)
		matches = append(matches, match)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return matches, nil
}

// ClearAll truncates the table.
func (s *PgvectorStore) ClearAll(ctx context.Context) error {
	if s.db == nil {
		return ErrPgvectorUnavailable
	}

	if _, err := s.db.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", s.tableName)); err != nil {
		return fmt.Errorf("failed to clear table: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (s *PgvectorStore) Close() error {
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// embedToString converts []float32 to the pgvector literal format.
func embedToString(embedding []float32) string {
	elements := make([]string, len(embedding))
	for i, v := range embedding {
		elements[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(elements, ",") + "]"
}
