// Package longterm defines the semantic memory store. Entries pair a user
// query with the assistant response and carry a vector embedding for
// similarity search across sessions.
package longterm

import (
	"context"
	"time"

	"github.com/procagent/procagent/pkg/session"
)

// Entry represents a single semantic memory entry.
type Entry struct {
	// ID is a unique identifier for the entry
	ID string

	// SessionID is the session the exchange happened in
	SessionID session.ID

	// UserID indicates the user the exchange belongs to
	UserID string

	// Query is the user utterance
	Query string

	// Response is the assistant response to the query
	Response string

	// Embedding is the vector representation of the query
	Embedding []float32

	// Category is an optional coarse label for the exchange
	Category string

	// Metadata is additional structured data about this entry
	Metadata map[string]interface{}

	// CreatedAt is when this entry was stored
	CreatedAt time.Time
}

// Match is a retrieved entry together with its similarity to the probe.
type Match struct {
	Entry

	// Similarity is the cosine similarity to the probe embedding (higher is
	// more similar)
	Similarity float32
}

// Store is the interface that all long-term store adapters must implement.
type Store interface {
	// Store persists an entry and returns its ID.
	Store(ctx context.Context, entry Entry) (string, error)

	// Similar returns up to limit entries most similar to the probe
	// embedding, most similar first.
	Similar(ctx context.Context, embedding []float32, limit int) ([]Match, error)

	// ClearAll removes every entry. Administrative; nothing in the turn
	// pipeline calls it.
	ClearAll(ctx context.Context) error

	// Close releases resources associated with the store.
	Close() error
}
