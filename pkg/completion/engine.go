// Package completion defines the interface to language-model completion
// services used for intent routing, query translation, result explanation,
// and conversational replies.
package completion

import (
	"context"
)

// Message is a single chat message sent to the completion service.
type Message struct {
	// Role is the speaker role ("system", "user", "assistant")
	Role string

	// Content is the message text
	Content string
}

// FunctionDef describes a callable function exposed to the completion
// service for structured output. Parameters is a JSON Schema object.
type FunctionDef struct {
	// Name is the function name the model must call
	Name string

	// Description tells the model when to call the function
	Description string

	// Parameters is the JSON Schema for the function arguments
	Parameters map[string]interface{}
}

// Option is a function that configures a completion request.
type Option func(*Options)

// Options holds configuration for a completion request.
type Options struct {
	// Temperature controls randomness in generation (0.0-1.0)
	Temperature float64

	// MaxTokens limits the length of the generated response
	MaxTokens int

	// Model specifies which model variant to use
	Model string
}

// DefaultOptions returns default completion options.
func DefaultOptions() Options {
	return Options{
		Temperature: 0.7,
		MaxTokens:   1024,
		Model:       "", // Empty means use the adapter's default
	}
}

// WithTemperature sets the temperature option.
func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

// WithMaxTokens sets the max tokens option.
func WithMaxTokens(tokens int) Option {
	return func(o *Options) {
		o.MaxTokens = tokens
	}
}

// WithModel sets the model option.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// Engine is the interface for completion services (LLMs).
type Engine interface {
	// Process sends a single-prompt request and returns the generated text.
	Process(ctx context.Context, prompt string, opts ...Option) (string, error)

	// ProcessMessages sends a multi-message chat request and returns the
	// generated text.
	ProcessMessages(ctx context.Context, messages []Message, opts ...Option) (string, error)

	// CallFunction forces the model to call the given function and returns
	// the raw JSON argument string of the call.
	CallFunction(ctx context.Context, messages []Message, fn FunctionDef, opts ...Option) (string, error)

	// GenerateEmbeddings creates vector embeddings for the provided texts.
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}
