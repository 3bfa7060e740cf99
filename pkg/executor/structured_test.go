package executor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	completionmock "github.com/procagent/procagent/pkg/completion/adapters/mock"
	"github.com/procagent/procagent/pkg/memory"
	"github.com/procagent/procagent/pkg/source"
	"github.com/procagent/procagent/pkg/source/adapters/memstore"
)

func seededStore(n int) *memstore.MemStore {
	store := memstore.NewMemStore()
	for i := 0; i < n; i++ {
		store.Add(source.Record{
			"item":  fmt.Sprintf("item-%d", i),
			"price": float64(i * 10),
			"year":  2014.0,
		})
	}
	return store
}

func TestStructuredExecutor_TwoTierExecution(t *testing.T) {
	// 83 matching rows, summary cap 100, complete cap 10000: both tiers
	// hold all 83 and the count agrees
	store := seededStore(83)
	engine := completionmock.NewMockEngine(
		completionmock.WithDefaultResponse("There were 83 purchases in 2014."),
	)
	engine.AddFunctionArgs(queryFuncName, `{"operation":"retrieve","filter":{"year":2014}}`)

	exec := NewStructuredExecutor(engine, store, DefaultStructuredConfig())
	result := exec.Execute(context.Background(), "How many purchases in 2014?", memory.FetchResult{})

	require.True(t, result.Success)
	assert.Len(t, result.Summary, 83)
	assert.Len(t, result.Complete, 83)
	assert.Equal(t, 83, result.Total)
	assert.Equal(t, result.Total, len(result.Complete))
	assert.Equal(t, "There were 83 purchases in 2014.", result.Message)
	require.NotNil(t, result.Spec)
	assert.Equal(t, source.OpRetrieve, result.Spec.Operation)
}

func TestStructuredExecutor_TierMonotonicity(t *testing.T) {
	// More rows than the summary cap: summary is capped, complete holds
	// more, total is authoritative
	store := seededStore(250)
	engine := completionmock.NewMockEngine()
	engine.AddFunctionArgs(queryFuncName, `{"operation":"retrieve"}`)

	exec := NewStructuredExecutor(engine, store, StructuredConfig{
		SummaryCap:  100,
		CompleteCap: 200,
	})
	result := exec.Execute(context.Background(), "show everything", memory.FetchResult{})

	require.True(t, result.Success)
	assert.Len(t, result.Summary, 100)
	assert.Len(t, result.Complete, 200)
	assert.Equal(t, 250, result.Total)
	assert.LessOrEqual(t, len(result.Summary), len(result.Complete))
	assert.LessOrEqual(t, len(result.Complete), result.Total)
}

func TestStructuredExecutor_TranslationFailure(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"malformed json", `{"operation": retrieve}`},
		{"unknown operation", `{"operation":"explode"}`},
		{"missing operation", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := completionmock.NewMockEngine()
			engine.AddFunctionArgs(queryFuncName, tt.args)

			exec := NewStructuredExecutor(engine, seededStore(5), DefaultStructuredConfig())
			result := exec.Execute(context.Background(), "question", memory.FetchResult{})

			assert.False(t, result.Success)
			assert.Equal(t, FailureTranslation, result.FailureKind)
			assert.Contains(t, result.Message, "rephrasing")
			assert.Nil(t, result.Spec)
		})
	}
}

func TestStructuredExecutor_CompletionUnreachable(t *testing.T) {
	engine := completionmock.NewMockEngine(completionmock.WithShouldError(true))

	exec := NewStructuredExecutor(engine, seededStore(5), DefaultStructuredConfig())
	result := exec.Execute(context.Background(), "question", memory.FetchResult{})

	assert.False(t, result.Success)
	assert.Equal(t, FailureTranslation, result.FailureKind)
}

func TestStructuredExecutor_ExplanationFallback(t *testing.T) {
	// Translation succeeds but free-text generation returns nothing: the
	// turn still succeeds with a plain count statement
	store := seededStore(7)
	engine := completionmock.NewMockEngine(completionmock.WithDefaultResponse(""))
	engine.AddFunctionArgs(queryFuncName, `{"operation":"retrieve"}`)

	exec := NewStructuredExecutor(engine, store, DefaultStructuredConfig())
	result := exec.Execute(context.Background(), "show all", memory.FetchResult{})

	require.True(t, result.Success)
	assert.True(t, strings.Contains(result.Message, "7"))
}

func TestStructuredExecutor_CountSpec(t *testing.T) {
	store := seededStore(42)
	engine := completionmock.NewMockEngine(
		completionmock.WithDefaultResponse("There are 42 matching purchases."),
	)
	engine.AddFunctionArgs(queryFuncName, `{"operation":"count","filter":{"year":2014}}`)

	exec := NewStructuredExecutor(engine, store, DefaultStructuredConfig())
	result := exec.Execute(context.Background(), "how many purchases in 2014?", memory.FetchResult{})

	require.True(t, result.Success)
	assert.Empty(t, result.Summary)
	assert.Empty(t, result.Complete)
	assert.Equal(t, 42, result.Total)
	require.NotNil(t, result.Spec)
	assert.Equal(t, source.OpCount, result.Spec.Operation)
}

func TestStructuredExecutor_AggregateSpec(t *testing.T) {
	store := memstore.NewMemStore(
		source.Record{"department": "IT", "price": 100.0},
		source.Record{"department": "IT", "price": 200.0},
		source.Record{"department": "Facilities", "price": 50.0},
	)
	engine := completionmock.NewMockEngine(
		completionmock.WithDefaultResponse("IT spent 300, Facilities spent 50."),
	)
	engine.AddFunctionArgs(queryFuncName,
		`{"operation":"aggregate","pipeline":[{"$group":{"_id":"$department","total":{"$sum":"$price"}}},{"$sort":{"total":-1}}]}`)

	exec := NewStructuredExecutor(engine, store, DefaultStructuredConfig())
	result := exec.Execute(context.Background(), "spend by department", memory.FetchResult{})

	require.True(t, result.Success)
	require.Len(t, result.Summary, 2)
	assert.Equal(t, "IT", result.Summary[0]["_id"])
	assert.Equal(t, 300.0, result.Summary[0]["total"])
	assert.Equal(t, 3, result.Total)
}
