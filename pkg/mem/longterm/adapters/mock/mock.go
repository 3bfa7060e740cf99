// Package mock provides an in-memory implementation of the longterm.Store
// interface for testing. Similarity search runs real cosine similarity over
// the stored embeddings.
package mock

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/procagent/procagent/pkg/mem/longterm"
	"github.com/procagent/procagent/pkg/session"
)

// Call represents a recorded method call on the mock store.
type Call struct {
	// Method is the name of the method that was called.
	Method string

	// Args contains the arguments passed to the method.
	Args []interface{}
}

// MockStore implements the longterm.Store interface in memory.
type MockStore struct {
	entries []longterm.Entry

	// shouldError indicates if the store should return errors
	shouldError bool

	mutex sync.RWMutex

	// callHistory records all calls to the store
	callHistory []Call
}

// NewMockStore creates a new empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		entries:     make([]longterm.Entry, 0),
		callHistory: make([]Call, 0),
	}
}

// Store implements the longterm.Store interface.
func (m *MockStore) Store(ctx context.Context, entry longterm.Entry) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = append(m.callHistory, Call{
		Method: "Store",
		Args:   []interface{}{ctx, entry},
	})

	if m.shouldError {
		return "", errors.New("mock long-term store error")
	}

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

	m.entries = append(m.entries, entry)
	return entry.ID, nil
}

// Similar implements the longterm.Store interface using cosine similarity.
// Ties break by recency, newest first.
func (m *MockStore) Similar(ctx context.Context, embedding []float32, limit int) ([]longterm.Match, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = append(m.callHistory, Call{
		Method: "Similar",
		Args:   []interface{}{ctx, embedding, limit},
	})

	if m.shouldError {
		return nil, errors.New("mock long-term store error")
	}

	if len(embedding) == 0 {
		return nil, errors.New("probe embedding cannot be empty")
	}

	if limit <= 0 {
		limit = 3
	}

	matches := make([]longterm.Match, 0, len(m.entries))
	for _, entry := range m.entries {
		matches = append(matches, longterm.Match{
			Entry:      entry,
			Similarity: cosineSimilarity(embedding, entry.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// ClearAll implements the longterm.Store interface.
func (m *MockStore) ClearAll(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = append(m.callHistory, Call{
		Method: "ClearAll",
		Args:   []interface{}{ctx},
	})

	if m.shouldError {
		return errors.New("mock long-term store error")
	}

	m.entries = m.entries[:0]
	return nil
}

// Close implements the longterm.Store interface.
func (m *MockStore) Close() error {
	return nil
}

// Entries returns a copy of all stored entries.
func (m *MockStore) Entries() []longterm.Entry {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	entries := make([]longterm.Entry, len(m.entries))
	copy(entries, m.entries)
	return entries
}

// SetShouldError configures whether the store returns errors.
func (m *MockStore) SetShouldError(shouldErr bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.shouldError = shouldErr
}

// GetCallHistory returns a copy of the call history.
func (m *MockStore) GetCallHistory() []Call {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	history := make([]Call, len(m.callHistory))
	copy(history, m.callHistory)
	return history
}

// ClearHistory clears the call history.
func (m *MockStore) ClearHistory() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = make([]Call, 0)
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
