package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procagent/procagent/pkg/mem/longterm"
	"github.com/procagent/procagent/pkg/session"
)

func sessionContext(id, user string) context.Context {
	return session.ContextWithSession(context.Background(), session.NewContext(session.ID(id), user))
}

func TestMockStore_Store(t *testing.T) {
	store := NewMockStore()
	ctx := sessionContext("sess-1", "user-1")

	id, err := store.Store(ctx, longterm.Entry{
		Query:     "how many open orders?",
		Response:  "There are 12 open orders.",
		Embedding: []float32{0.1, 0.2, 0.3},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries := store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, session.ID("sess-1"), entries[0].SessionID)
	assert.Equal(t, "user-1", entries[0].UserID)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestMockStore_StoreRequiresEmbedding(t *testing.T) {
	store := NewMockStore()
	ctx := sessionContext("sess-1", "user-1")

	_, err := store.Store(ctx, longterm.Entry{Query: "no embedding"})
	assert.Error(t, err)
}

func TestMockStore_SimilarRanking(t *testing.T) {
	store := NewMockStore()
	ctx := sessionContext("sess-1", "user-1")

	entries := []longterm.Entry{
		{Query: "orders last week", Response: "r1", Embedding: []float32{1, 0, 0}},
		{Query: "vendor totals", Response: "r2", Embedding: []float32{0, 1, 0}},
		{Query: "orders this week", Response: "r3", Embedding: []float32{0.9, 0.1, 0}},
	}
	for _, entry := range entries {
		_, err := store.Store(ctx, entry)
		require.NoError(t, err)
	}

	matches, err := store.Similar(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Most similar first
	assert.Equal(t, "orders last week", matches[0].Query)
	assert.Equal(t, "orders this week", matches[1].Query)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestMockStore_SimilarTiesBreakByRecency(t *testing.T) {
	store := NewMockStore()
	ctx := sessionContext("sess-1", "user-1")

	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	_, err := store.Store(ctx, longterm.Entry{
		Query: "older", Response: "r", Embedding: []float32{1, 0}, CreatedAt: older,
	})
	require.NoError(t, err)
	_, err = store.Store(ctx, longterm.Entry{
		Query: "newer", Response: "r", Embedding: []float32{1, 0}, CreatedAt: newer,
	})
	require.NoError(t, err)

	matches, err := store.Similar(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "newer", matches[0].Query)
}

func TestMockStore_SimilarEmptyStore(t *testing.T) {
	store := NewMockStore()
	ctx := sessionContext("sess-1", "user-1")

	matches, err := store.Similar(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMockStore_ClearAll(t *testing.T) {
	store := NewMockStore()
	ctx := sessionContext("sess-1", "user-1")

	_, err := store.Store(ctx, longterm.Entry{Query: "q", Response: "r", Embedding: []float32{1, 0}})
	require.NoError(t, err)

	require.NoError(t, store.ClearAll(ctx))
	assert.Empty(t, store.Entries())
}

func TestMockStore_ErrorMode(t *testing.T) {
	store := NewMockStore()
	store.SetShouldError(true)
	ctx := sessionContext("sess-1", "user-1")

	_, err := store.Store(ctx, longterm.Entry{Embedding: []float32{1}})
	assert.Error(t, err)

	_, err = store.Similar(ctx, []float32{1}, 3)
	assert.Error(t, err)
}
