// Package memstore provides an in-memory implementation of the source.Store
// interface, used for tests and for running without an external datastore.
package memstore

import (
	"context"
	"sync"

	"github.com/procagent/procagent/pkg/source"
)

// MemStore implements the source.Store interface over an in-memory slice.
type MemStore struct {
	records []source.Record
	mutex   sync.RWMutex
}

// NewMemStore creates a new MemStore seeded with the given records.
func NewMemStore(records ...source.Record) *MemStore {
	store := &MemStore{}
	store.Load(records)
	return store
}

// Load replaces the store's contents with the given records.
func (m *MemStore) Load(records []source.Record) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.records = make([]source.Record, len(records))
	copy(m.records, records)
}

// Add appends records to the store.
func (m *MemStore) Add(records ...source.Record) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.records = append(m.records, records...)
}

// Execute implements the source.Store interface.
func (m *MemStore) Execute(ctx context.Context, spec source.QuerySpec) ([]source.Record, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return source.Evaluate(m.records, spec)
}

// Count implements the source.Store interface.
func (m *MemStore) Count(ctx context.Context, spec source.QuerySpec) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return source.EvaluateCount(m.records, spec)
}

// Close implements the source.Store interface.
func (m *MemStore) Close() error {
	return nil
}
