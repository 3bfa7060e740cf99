// Package sqlite provides a SQLite-backed implementation of the
// shortterm.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/procagent/procagent/pkg/mem/shortterm"
	"github.com/procagent/procagent/pkg/session"
)

// SQLiteStore implements the shortterm.Store interface using a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore with the given database connection
// and ensures the schema exists.
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
		CREATE TABLE IF NOT EXISTS conversation_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS conversation_messages_session_idx
			ON conversation_messages (session_id, created_at);
	`)
	return err
}

// Append adds a message to the session log.
func (s *SQLiteStore) Append(ctx context.Context, msg shortterm.Message) (string, error) {
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

	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_messages (
			id, session_id, user_id, role, content, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, string(msg.SessionID), msg.UserID, string(msg.Role), msg.Content, metadataJSON, msg.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}

	return msg.ID, nil
}

// Recent returns up to limit of the most recent messages, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]shortterm.Message, error) {
	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return nil, session.ErrMissingSessionContext
	}

	if limit <= 0 {
		limit = 10
	}

	// Select newest first, then reverse into chronological order
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, role, content, metadata, created_at
		FROM conversation_messages
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		string(sessCtx.SessionID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []shortterm.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	reverse(messages)
	return messages, nil
}

// Clear removes all messages for the session.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return session.ErrMissingSessionContext
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE session_id = ?`,
		string(sessCtx.SessionID),
	)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanMessage(rows *sql.Rows) (shortterm.Message, error) {
	var msg shortterm.Message
	var sessionIDStr, roleStr string
	var metadataJSON []byte

	err := rows.Scan(
		&msg.ID,
		&sessionIDStr,
		&msg.UserID,
		&roleStr,
		&msg.Content,
		&metadataJSON,
		&msg.CreatedAt,
	)
	if err != nil {
		return shortterm.Message{}, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.SessionID = session.ID(sessionIDStr)
	msg.Role = session.Role(roleStr)

	if len(metadataJSON) > 0 && string(metadataJSON) != "null" {
		msg.Metadata = make(map[string]interface{})
		if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
			return shortterm.Message{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return msg, nil
}

func reverse(messages []shortterm.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
