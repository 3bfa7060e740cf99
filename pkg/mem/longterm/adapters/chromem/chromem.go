// Package chromem provides an embedded vector store implementation of the
// longterm.Store interface using chromem-go. Embeddings are computed by the
// caller; the adapter never calls out to an embedding service itself.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/procagent/procagent/pkg/log"
	"github.com/procagent/procagent/pkg/mem/longterm"
	"github.com/procagent/procagent/pkg/session"
)

// ErrExternalEmbeddingsOnly is returned if chromem asks the adapter to embed
// text. Every stored document carries a precomputed embedding, so this only
// fires on misuse.
var ErrExternalEmbeddingsOnly = errors.New("chromem adapter requires precomputed embeddings")

// Config contains the configuration for the chromem adapter.
type Config struct {
	// Path is the on-disk persistence directory. Empty means in-memory.
	Path string

	// Collection is the collection name to use.
	Collection string

	// Compress enables gzip compression of persisted records.
	Compress bool
}

// ChromemStore implements the longterm.Store interface using chromem-go.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
}

// NewChromemStore creates a new chromem-backed store.
func NewChromemStore(config Config) (*ChromemStore, error) {
	if config.Collection == "" {
		config.Collection = "conversations"
	}

	var db *chromem.DB
	var err error
	if config.Path != "" {
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open persistent chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Debug("Opened chromem collection",
		"collection", config.Collection,
		"persistent", config.Path != "",
		"documents", collection.Count())

	return &ChromemStore{
		db:         db,
		collection: collection,
		name:       config.Collection,
	}, nil
}

// Store persists an entry with its precomputed embedding.
func (s *ChromemStore) Store(ctx context.Context, entry longterm.Entry) (string, error) {
	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return "", session.ErrMissingSessionContext
	}

	if len(entry.Embedding) == 0 {
		return "", errors.New("entry must have an embedding")
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

	doc := chromem.Document{
		ID:        entry.ID,
		Content:   entry.Query,
		Embedding: entry.Embedding,
		Metadata:  entryMetadata(entry),
	}

	if err := s.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return "", fmt.Errorf("failed to add document: %w", err)
	}

	log.Debug("Stored long-term entry",
		"id", entry.ID,
		"session_id", entry.SessionID)

	return entry.ID, nil
}

// Similar returns up to limit entries most similar to the probe embedding.
func (s *ChromemStore) Similar(ctx context.Context, embedding []float32, limit int) ([]longterm.Match, error) {
	if len(embedding) == 0 {
		return nil, errors.New("probe embedding cannot be empty")
	}

	if limit <= 0 {
		limit = 3
	}

	// chromem rejects a request for more results than stored documents
	if count := s.collection.Count(); count < limit {
		if count == 0 {
			return nil, nil
		}
		limit = count
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	matches := make([]longterm.Match, 0, len(results))
	for _, result := range results {
		matches = append(matches, resultToMatch(result))
	}

	// chromem orders by similarity only; equal-similarity matches rank
	// newest first
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	return matches, nil
}

// ClearAll drops and recreates the collection.
func (s *ChromemStore) ClearAll(ctx context.Context) error {
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	collection, err := s.db.GetOrCreateCollection(s.name, nil, rejectEmbedding)
	if err != nil {
		return fmt.Errorf("failed to recreate collection: %w", err)
	}

	s.collection = collection
	return nil
}

// Close persists nothing extra; chromem writes through on every add.
func (s *ChromemStore) Close() error {
	return nil
}

func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrExternalEmbeddingsOnly
}

func entryMetadata(entry longterm.Entry) map[string]string {
	metadata := map[string]string{
		"session_id": string(entry.SessionID),
		"user_id":    entry.UserID,
		"response":   entry.Response,
		"created_at": entry.CreatedAt.Format(time.RFC3339),
	}
	if entry.Category != "" {
		metadata["category"] = entry.Category
	}
	return metadata
}

func resultToMatch(result chromem.Result) longterm.Match {
	match := longterm.Match{
		Entry: longterm.Entry{
			ID:        result.ID,
			Query:     result.Content,
			SessionID: session.ID(result.Metadata["session_id"]),
			UserID:    result.Metadata["user_id"],
			Response:  result.Metadata["response"],
			Category:  result.Metadata["category"],
		},
		Similarity: result.Similarity,
	}

	if createdAt, err := time.Parse(time.RFC3339, result.Metadata["created_at"]); err == nil {
		match.CreatedAt = createdAt
	}

	return match
}
