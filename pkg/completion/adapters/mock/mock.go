// Package mock provides a configurable in-memory implementation of the
// completion.Engine interface for testing.
package mock

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/procagent/procagent/pkg/completion"
	"github.com/procagent/procagent/pkg/log"
)

// Call represents a recorded method call on the mock engine.
type Call struct {
	// Method is the name of the method that was called.
	Method string

	// Args contains the arguments passed to the method.
	Args []interface{}
}

// MockEngine implements the completion.Engine interface with canned responses.
type MockEngine struct {
	// cannedResponses maps prompts to predetermined responses
	cannedResponses map[string]string

	// defaultResponse is returned when no matching canned response is found
	defaultResponse string

	// cannedFunctionArgs maps function names to predetermined JSON argument
	// strings returned by CallFunction
	cannedFunctionArgs map[string]string

	// cannedEmbeddings maps text to predetermined embeddings
	cannedEmbeddings map[string][]float32

	// defaultEmbedding is returned when no matching canned embedding is found
	defaultEmbedding []float32

	// exactMatch determines if prompt matching is exact or uses Contains
	exactMatch bool

	// shouldError indicates if the engine should return errors
	shouldError bool

	// mutex protects the maps from concurrent access
	mutex sync.RWMutex

	// callHistory records all calls to the engine
	callHistory []Call
}

// MockOption is a function that configures a MockEngine.
type MockOption func(*MockEngine)

// WithDefaultResponse sets the default response for the mock engine.
func WithDefaultResponse(resp string) MockOption {
	return func(m *MockEngine) {
		m.defaultResponse = resp
	}
}

// WithDefaultEmbedding sets the default embedding for the mock engine.
func WithDefaultEmbedding(embedding []float32) MockOption {
	return func(m *MockEngine) {
		m.defaultEmbedding = embedding
	}
}

// WithExactMatch configures whether the mock engine uses exact matching.
func WithExactMatch(exact bool) MockOption {
	return func(m *MockEngine) {
		m.exactMatch = exact
	}
}

// WithShouldError configures whether the mock engine returns errors.
func WithShouldError(shouldErr bool) MockOption {
	return func(m *MockEngine) {
		m.shouldError = shouldErr
	}
}

// NewMockEngine creates a new MockEngine with the given options.
func NewMockEngine(opts ...MockOption) *MockEngine {
	m := &MockEngine{
		cannedResponses:    make(map[string]string),
		defaultResponse:    "This is a mock response",
		cannedFunctionArgs: make(map[string]string),
		cannedEmbeddings:   make(map[string][]float32),
		defaultEmbedding:   []float32{0.0, 0.0, 0.0},
		exactMatch:         false, // Default to substring matching
		shouldError:        false,
		callHistory:        make([]Call, 0),
	}

	for _, opt := range opts {
		opt(m)
	}

	log.Debug("Created mock completion engine", "exact_match", m.exactMatch)
	return m
}

// Process implements the completion.Engine interface.
func (m *MockEngine) Process(ctx context.Context, prompt string, opts ...completion.Option) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = append(m.callHistory, Call{
		Method: "Process",
		Args:   []interface{}{ctx, prompt, opts},
	})

	if m.shouldError {
		return "", errors.New("mock completion engine error")
	}

	return m.respond(prompt), nil
}

// ProcessMessages implements the completion.Engine interface. Matching runs
// against the content of the last message.
func (m *MockEngine) ProcessMessages(ctx context.Context, messages []completion.Message, opts ...completion.Option) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = append(m.callHistory, Call{
		Method: "ProcessMessages",
		Args:   []interface{}{ctx, messages, opts},
	})

	if m.shouldError {
		return "", errors.New("mock completion engine error")
	}

	var last string
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}

	return m.respond(last), nil
}

// CallFunction implements the completion.Engine interface. It returns the
// canned argument string registered for the function name.
func (m *MockEngine) CallFunction(ctx context.Context, messages []completion.Message, fn completion.FunctionDef, opts ...completion.Option) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = append(m.callHistory, Call{
		Method: "CallFunction",
		Args:   []interface{}{ctx, messages, fn, opts},
	})

	if m.shouldError {
		return "", errors.New("mock completion engine error")
	}

	if args, ok := m.cannedFunctionArgs[fn.Name]; ok {
		return args, nil
	}

	return "{}", nil
}

// GenerateEmbeddings implements the completion.Engine interface.
func (m *MockEngine) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = append(m.callHistory, Call{
		Method: "GenerateEmbeddings",
		Args:   []interface{}{ctx, texts},
	})

	if m.shouldError {
		return nil, errors.New("mock completion engine error")
	}

	log.Debug("Generating embeddings with mock engine", "text_count", len(texts))

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if m.exactMatch {
			if embedding, ok := m.cannedEmbeddings[text]; ok {
				embeddings[i] = embedding
				continue
			}
		} else {
			var matched bool
			for key, embedding := range m.cannedEmbeddings {
				if strings.Contains(text, key) {
					embeddings[i] = embedding
					matched = true
					break
				}
			}
			if matched {
				continue
			}
		}

		embeddings[i] = m.defaultEmbedding
	}

	return embeddings, nil
}

// respond finds a canned response for the prompt. Caller must hold the mutex.
func (m *MockEngine) respond(prompt string) string {
	if m.exactMatch {
		if response, ok := m.cannedResponses[prompt]; ok {
			return response
		}
	} else {
		for key, response := range m.cannedResponses {
			if strings.Contains(prompt, key) {
				return response
			}
		}
	}

	return m.defaultResponse
}

// AddResponse adds a canned response for a specific prompt.
func (m *MockEngine) AddResponse(prompt, response string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.cannedResponses[prompt] = response
}

// SetDefaultResponse sets the default response.
func (m *MockEngine) SetDefaultResponse(response string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.defaultResponse = response
}

// AddFunctionArgs registers a canned JSON argument string for CallFunction.
func (m *MockEngine) AddFunctionArgs(funcName, args string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.cannedFunctionArgs[funcName] = args
}

// AddEmbedding adds a canned embedding for a specific text.
func (m *MockEngine) AddEmbedding(text string, embedding []float32) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.cannedEmbeddings[text] = embedding
}

// SetDefaultEmbedding sets the default embedding.
func (m *MockEngine) SetDefaultEmbedding(embedding []float32) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.defaultEmbedding = embedding
}

// SetShouldError configures whether the engine returns errors.
func (m *MockEngine) SetShouldError(shouldErr bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.shouldError = shouldErr
}

// GetCallHistory returns a copy of the call history.
func (m *MockEngine) GetCallHistory() []Call {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	history := make([]Call, len(m.callHistory))
	copy(history, m.callHistory)

	return history
}

// ClearHistory clears the call history.
func (m *MockEngine) ClearHistory() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = make([]Call, 0)
}
