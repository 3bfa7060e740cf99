// Package mock provides an in-memory implementation of the shortterm.Store
// interface for testing.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/procagent/procagent/pkg/mem/shortterm"
	"github.com/procagent/procagent/pkg/session"
)

// Call represents a recorded method call on the mock store.
type Call struct {
	// Method is the name of the method that was called.
	Method string

	// Args contains the arguments passed to the method.
	Args []interface{}
}

// MockStore implements the shortterm.Store interface in memory.
type MockStore struct {
	// messages holds the per-session logs in insertion order
	messages map[session.ID][]shortterm.Message

	// shouldError indicates if the store should return errors
	shouldError bool

	mutex sync.RWMutex

	// callHistory records all calls to the store
	callHistory []Call
}

// NewMockStore creates a new empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		messages:    make(map[session.ID][]shortterm.Message),
		callHistory: make([]Call, 0),
	}
}

// Append implements the shortterm.Store interface.
func (m *MockStore) Append(ctx context.Context, msg shortterm.Message) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = append(m.callHistory, Call{
		Method: "Append",
		Args:   []interface{}{ctx, msg},
	})

	if m.shouldError {
		return "", errors.New("mock short-term store error")
	}

	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return "", session.ErrMissingSessionContext
	}

	if msg.SessionID == "" {
		msg.SessionID = sessCtx.SessionID
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

	m.messages[sessCtx.SessionID] = append(m.messages[sessCtx.SessionID], msg)
	return msg.ID, nil
}

// Recent implements the shortterm.Store interface.
func (m *MockStore) Recent(ctx context.Context, limit int) ([]shortterm.Message, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = append(m.callHistory, Call{
		Method: "Recent",
		Args:   []interface{}{ctx, limit},
	})

	if m.shouldError {
		return nil, errors.New("mock short-term store error")
	}

	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return nil, session.ErrMissingSessionContext
	}

	if limit <= 0 {
		limit = 10
	}

	log := m.messages[sessCtx.SessionID]
	start := len(log) - limit
	if start < 0 {
		start = 0
	}

	recent := make([]shortterm.Message, len(log)-start)
	copy(recent, log[start:])
	return recent, nil
}

// Clear implements the shortterm.Store interface.
func (m *MockStore) Clear(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = append(m.callHistory, Call{
		Method: "Clear",
		Args:   []interface{}{ctx},
	})

	if m.shouldError {
		return errors.New("mock short-term store error")
	}

	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return session.ErrMissingSessionContext
	}

	delete(m.messages, sessCtx.SessionID)
	return nil
}

// Close implements the shortterm.Store interface.
func (m *MockStore) Close() error {
	return nil
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
