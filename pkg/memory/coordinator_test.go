package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	completionmock "github.com/procagent/procagent/pkg/completion/adapters/mock"
	longtermmock "github.com/procagent/procagent/pkg/mem/longterm/adapters/mock"
	shorttermmock "github.com/procagent/procagent/pkg/mem/shortterm/adapters/mock"
	"github.com/procagent/procagent/pkg/scripting"
	"github.com/procagent/procagent/pkg/session"
)

type testFixture struct {
	coordinator *Coordinator
	shortTerm   *shorttermmock.MockStore
	longTerm    *longtermmock.MockStore
	embedder    *completionmock.MockEngine
}

func newFixture(opts ...Option) *testFixture {
	shortTerm := shorttermmock.NewMockStore()
	longTerm := longtermmock.NewMockStore()
	embedder := completionmock.NewMockEngine(
		completionmock.WithDefaultEmbedding([]float32{0.1, 0.2, 0.3}),
	)

	return &testFixture{
		coordinator: NewCoordinator(shortTerm, longTerm, embedder, DefaultConfig(), opts...),
		shortTerm:   shortTerm,
		longTerm:    longTerm,
		embedder:    embedder,
	}
}

func sessionContext(id, user string) context.Context {
	return session.ContextWithSession(context.Background(), session.NewContext(session.ID(id), user))
}

func TestCoordinator_UpdateWritesBothTiers(t *testing.T) {
	f := newFixture()
	ctx := sessionContext("sess-1", "user-1")

	err := f.coordinator.Update(ctx, "How many purchases in 2014?", "There were 83 purchases.", nil)
	require.NoError(t, err)

	messages, err := f.shortTerm.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, session.RoleUser, messages[0].Role)
	assert.Equal(t, session.RoleAssistant, messages[1].Role)

	entries := f.longTerm.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "How many purchases in 2014?", entries[0].Query)
	assert.Equal(t, "There were 83 purchases.", entries[0].Response)
}

func TestCoordinator_DuplicateSuppression(t *testing.T) {
	f := newFixture()
	ctx := sessionContext("sess-1", "user-1")

	// The identical normalized query twice within the lookback window yields
	// one long-term entry and four short-term messages
	require.NoError(t, f.coordinator.Update(ctx, "How many purchases in 2014?", "83 purchases.", nil))
	require.NoError(t, f.coordinator.Update(ctx, "  how many purchases in 2014?  ", "83 purchases.", nil))

	messages, err := f.shortTerm.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, messages, 4)

	assert.Len(t, f.longTerm.Entries(), 1)
}

func TestCoordinator_DuplicateOutsideLookbackWindow(t *testing.T) {
	f := newFixture()
	ctx := sessionContext("sess-1", "user-1")

	require.NoError(t, f.coordinator.Update(ctx, "How many purchases in 2014?", "83 purchases.", nil))

	// More than the lookback count of distinct intervening queries pushes
	// the original out of the window
	for i := 0; i < DefaultConfig().DedupLookback; i++ {
		require.NoError(t, f.coordinator.Update(ctx, fmt.Sprintf("intervening question %d", i), "answer", nil))
	}

	require.NoError(t, f.coordinator.Update(ctx, "How many purchases in 2014?", "83 purchases.", nil))

	var matching int
	for _, entry := range f.longTerm.Entries() {
		if entry.Query == "How many purchases in 2014?" {
			matching++
		}
	}
	assert.Equal(t, 2, matching)
}

func TestCoordinator_DuplicateAcrossSessions(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.coordinator.Update(sessionContext("sess-a", "user-1"), "same question", "answer a", nil))
	require.NoError(t, f.coordinator.Update(sessionContext("sess-b", "user-1"), "same question", "answer b", nil))

	// Re-asking in a different session is not suppressed
	assert.Len(t, f.longTerm.Entries(), 2)
}

func TestCoordinator_FetchReturnsBothTiers(t *testing.T) {
	f := newFixture()
	ctx := sessionContext("sess-1", "user-1")

	require.NoError(t, f.coordinator.Update(ctx, "What vendors did we use?", "Acme and Globex.", nil))

	result := f.coordinator.Fetch(ctx, "Which vendors were most common?")
	assert.False(t, result.Degraded())
	assert.Len(t, result.RecentMessages, 2)
	require.Len(t, result.RelevantContext, 1)
	assert.Equal(t, "What vendors did we use?", result.RelevantContext[0].Query)
}

func TestCoordinator_FetchReportsDuplicate(t *testing.T) {
	f := newFixture()
	ctx := sessionContext("sess-1", "user-1")

	require.NoError(t, f.coordinator.Update(ctx, "How many purchases in 2014?", "83 purchases.", nil))

	result := f.coordinator.Fetch(ctx, "how many purchases in 2014?")
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, "83 purchases.", result.DuplicateResponse)

	fresh := f.coordinator.Fetch(ctx, "a brand new question")
	assert.False(t, fresh.IsDuplicate)
	assert.Empty(t, fresh.DuplicateResponse)
}

func TestCoordinator_FetchDegradedLongTerm(t *testing.T) {
	f := newFixture()
	ctx := sessionContext("sess-1", "user-1")

	require.NoError(t, f.coordinator.Update(ctx, "first question", "first answer", nil))

	// Vector store unreachable: recent messages still arrive, semantic
	// context degrades to empty with the flag set
	f.longTerm.SetShouldError(true)

	result := f.coordinator.Fetch(ctx, "second question")
	assert.True(t, result.LongTermDegraded)
	assert.False(t, result.ShortTermDegraded)
	assert.Empty(t, result.RelevantContext)
	assert.Len(t, result.RecentMessages, 2)
}

func TestCoordinator_FetchDegradedShortTerm(t *testing.T) {
	f := newFixture()
	ctx := sessionContext("sess-1", "user-1")

	f.shortTerm.SetShouldError(true)

	result := f.coordinator.Fetch(ctx, "a question")
	assert.True(t, result.ShortTermDegraded)
	assert.Empty(t, result.RecentMessages)
	assert.False(t, result.IsDuplicate)
}

func TestCoordinator_FetchDegradedEmbedding(t *testing.T) {
	f := newFixture()
	ctx := sessionContext("sess-1", "user-1")

	f.embedder.SetShouldError(true)

	result := f.coordinator.Fetch(ctx, "a question")
	assert.True(t, result.LongTermDegraded)
	assert.False(t, result.ShortTermDegraded)
}

func TestCoordinator_UpdateSurvivesLongTermFailure(t *testing.T) {
	f := newFixture()
	ctx := sessionContext("sess-1", "user-1")

	f.longTerm.SetShouldError(true)

	err := f.coordinator.Update(ctx, "a question", "an answer", nil)
	assert.Error(t, err)

	// The conversation log is intact despite the failed archive write
	messages, recentErr := f.shortTerm.Recent(ctx, 10)
	require.NoError(t, recentErr)
	assert.Len(t, messages, 2)
}

func TestCoordinator_ClearSession(t *testing.T) {
	f := newFixture()
	ctx := sessionContext("sess-1", "user-1")

	require.NoError(t, f.coordinator.Update(ctx, "a question", "an answer", nil))
	require.NoError(t, f.coordinator.ClearSession(ctx))

	messages, err := f.shortTerm.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, messages)

	// The long-term archive is retained
	assert.Len(t, f.longTerm.Entries(), 1)
}

func TestCoordinator_StoreHookVeto(t *testing.T) {
	engine, err := scripting.NewLuaEngine(scripting.DefaultConfig())
	require.NoError(t, err)
	defer engine.Close()

	require.NoError(t, engine.LoadScript("veto", []byte(`
		function before_longterm_store(query, response)
			if string.find(query, "secret") then
				return false
			end
			return true
		end
	`)))

	f := newFixture(WithScriptEngine(engine))
	ctx := sessionContext("sess-1", "user-1")

	require.NoError(t, f.coordinator.Update(ctx, "this is a secret question", "answer", nil))
	require.NoError(t, f.coordinator.Update(ctx, "an ordinary question", "answer", nil))

	entries := f.longTerm.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "an ordinary question", entries[0].Query)

	// The vetoed turn still reaches the conversation log
	messages, err := f.shortTerm.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, messages, 4)
}
