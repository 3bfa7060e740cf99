package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procagent/procagent/pkg/completion"
)

func TestMockEngine_Process(t *testing.T) {
	engine := NewMockEngine(WithDefaultResponse("default"))
	engine.AddResponse("weather", "It is sunny.")

	t.Run("canned response by substring", func(t *testing.T) {
		result, err := engine.Process(context.Background(), "what is the weather today?")
		require.NoError(t, err)
		assert.Equal(t, "It is sunny.", result)
	})

	t.Run("default response", func(t *testing.T) {
		result, err := engine.Process(context.Background(), "something unrelated")
		require.NoError(t, err)
		assert.Equal(t, "default", result)
	})

	t.Run("error mode", func(t *testing.T) {
		engine.SetShouldError(true)
		defer engine.SetShouldError(false)

		_, err := engine.Process(context.Background(), "anything")
		assert.Error(t, err)
	})
}

func TestMockEngine_ProcessMessages(t *testing.T) {
	engine := NewMockEngine()
	engine.AddResponse("status of order", "Order 42 shipped yesterday.")

	messages := []completion.Message{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: "what is the status of order 42?"},
	}

	result, err := engine.ProcessMessages(context.Background(), messages)
	require.NoError(t, err)
	assert.Equal(t, "Order 42 shipped yesterday.", result)
}

func TestMockEngine_CallFunction(t *testing.T) {
	engine := NewMockEngine()
	engine.AddFunctionArgs("generate_query", `{"operation":"retrieve","filter":{}}`)

	fn := completion.FunctionDef{Name: "generate_query"}

	t.Run("canned arguments", func(t *testing.T) {
		args, err := engine.CallFunction(context.Background(), nil, fn)
		require.NoError(t, err)
		assert.JSONEq(t, `{"operation":"retrieve","filter":{}}`, args)
	})

	t.Run("unregistered function returns empty object", func(t *testing.T) {
		args, err := engine.CallFunction(context.Background(), nil, completion.FunctionDef{Name: "other"})
		require.NoError(t, err)
		assert.Equal(t, "{}", args)
	})
}

func TestMockEngine_GenerateEmbeddings(t *testing.T) {
	engine := NewMockEngine(WithDefaultEmbedding([]float32{0.1, 0.2, 0.3}))
	engine.AddEmbedding("special", []float32{0.9, 0.9, 0.9})

	embeddings, err := engine.GenerateEmbeddings(context.Background(), []string{
		"a special text",
		"an ordinary text",
	})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, []float32{0.9, 0.9, 0.9}, embeddings[0])
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, embeddings[1])
}

func TestMockEngine_CallHistory(t *testing.T) {
	engine := NewMockEngine()

	_, err := engine.Process(context.Background(), "first")
	require.NoError(t, err)
	_, err = engine.GenerateEmbeddings(context.Background(), []string{"second"})
	require.NoError(t, err)

	history := engine.GetCallHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "Process", history[0].Method)
	assert.Equal(t, "GenerateEmbeddings", history[1].Method)

	engine.ClearHistory()
	assert.Empty(t, engine.GetCallHistory())
}
