// Package shortterm defines the per-session conversation log. Every adapter
// enforces session isolation: reads and writes are scoped to the session
// identity carried in the context.
package shortterm

import (
	"context"
	"time"

	"github.com/procagent/procagent/pkg/session"
)

// Message represents a single conversation message in the session log.
type Message struct {
	// ID is a unique identifier for the message
	ID string

	// SessionID is the session that owns this message
	SessionID session.ID

	// UserID indicates the user the session belongs to
	UserID string

	// Role is the speaker role (user or assistant)
	Role session.Role

	// Content is the message text
	Content string

	// Metadata is additional structured data about this message
	Metadata map[string]interface{}

	// CreatedAt is when this message was appended
	CreatedAt time.Time
}

// Store is the interface that all short-term store adapters must implement.
// All methods resolve the session from the context.
type Store interface {
	// Append adds a message to the session log and returns its ID.
	Append(ctx context.Context, msg Message) (string, error)

	// Recent returns up to limit of the most recent messages for the
	// session, ordered oldest first.
	Recent(ctx context.Context, limit int) ([]Message, error)

	// Clear removes all messages for the session.
	Clear(ctx context.Context) error

	// Close releases resources associated with the store.
	Close() error
}
