// Package postgres provides a PostgreSQL-backed implementation of the
// shortterm.Store interface. Schema management runs through embedded
// migrations applied at startup.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/procagent/procagent/pkg/log"
	"github.com/procagent/procagent/pkg/mem/shortterm"
	"github.com/procagent/procagent/pkg/session"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PostgresStore implements the shortterm.Store interface using PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// messageRow is the database representation of a conversation message.
type messageRow struct {
	ID        string    `db:"id"`
	SessionID string    `db:"session_id"`
	UserID    string    `db:"user_id"`
	Role      string    `db:"role"`
	Content   string    `db:"content"`
	Metadata  []byte    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

// NewPostgresStore connects to PostgreSQL, applies pending migrations, and
// returns a ready store.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(s.db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Debug("Applied short-term store migrations")
	return nil
}

// Append adds a message to the session log.
func (s *PostgresStore) Append(ctx context.Context, msg shortterm.Message) (string, error) {
	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return "", session.ErrMissingSessionContext
	}

	if msg.SessionID == "" {
		msg.SessionID = sessCtx.SessionID
	} else if msg.SessionID != sessCtx.SessionID {
		return "", fmt.Errorf("message session ID must match context session ID")
	}

	if msg.UserID == "" {
		msg.UserID = sessCtx.UserID
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	metadata := msg.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_messages (
			id, session_id, user_id, role, content, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, string(msg.SessionID), msg.UserID, string(msg.Role), msg.Content, metadataJSON, msg.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}

	return msg.ID, nil
}

// Recent returns up to limit of the most recent messages, oldest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]shortterm.Message, error) {
	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return nil, session.ErrMissingSessionContext
	}

	if limit <= 0 {
		limit = 10
	}

	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, session_id, user_id, role, content, metadata, created_at
		FROM conversation_messages
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		string(sessCtx.SessionID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	// Rows arrive newest first; reverse into chronological order
	messages := make([]shortterm.Message, len(rows))
	for i, row := range rows {
		msg, err := rowToMessage(row)
		if err != nil {
			return nil, err
		}
		messages[len(rows)-1-i] = msg
	}

	return messages, nil
}

// Clear removes all messages for the session.
func (s *PostgresStore) Clear(ctx context.Context) error {
	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return session.ErrMissingSessionContext
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE session_id = $1`,
		string(sessCtx.SessionID),
	)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func rowToMessage(row messageRow) (shortterm.Message, error) {
	msg := shortterm.Message{
		ID:        row.ID,
		SessionID: session.ID(row.SessionID),
		UserID:    row.UserID,
		Role:      session.Role(row.Role),
		Content:   row.Content,
		CreatedAt: row.CreatedAt,
	}

	if len(row.Metadata) > 0 {
		msg.Metadata = make(map[string]interface{})
		if err := json.Unmarshal(row.Metadata, &msg.Metadata); err != nil {
			return shortterm.Message{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return msg, nil
}
