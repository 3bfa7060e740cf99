// Package openai provides an OpenAI-backed implementation of the
// completion.Engine interface.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/procagent/procagent/pkg/completion"
	"github.com/procagent/procagent/pkg/log"
)

var (
	// ErrInvalidConfig is returned when the adapter configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrEmptyAPIKey is returned when the API key is missing.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrNoToolCall is returned when the model did not produce the forced
	// function call.
	ErrNoToolCall = errors.New("no function call in response")
)

// Config holds the configuration for the OpenAI adapter.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// EmbeddingModel is the model to use for embeddings, e.g., "text-embedding-3-small".
	EmbeddingModel string
	// ChatModel is the model to use for chat completions, e.g., "gpt-4o-mini".
	ChatModel string
	// BaseURL is the base URL for the OpenAI API (for testing).
	BaseURL string
}

// OpenAIAdapter implements the completion.Engine interface using the OpenAI API.
type OpenAIAdapter struct {
	client         *openai.Client
	embeddingModel string
	chatModel      string
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(config Config) (*OpenAIAdapter, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	// Set default models if not specified
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "text-embedding-3-small"
	}
	if config.ChatModel == "" {
		config.ChatModel = "gpt-4o-mini"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	client := openai.NewClientWithConfig(clientConfig)

	return &OpenAIAdapter{
		client:         client,
		embeddingModel: config.EmbeddingModel,
		chatModel:      config.ChatModel,
	}, nil
}

// GenerateEmbeddings generates embeddings for the given texts using the OpenAI API.
func (a *OpenAIAdapter) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	log.Debug("Generating embeddings", "count", len(texts), "model", a.embeddingModel)

	request := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(a.embeddingModel),
	}

	response, err := a.client.CreateEmbeddings(ctx, request)
	if err != nil {
		log.Error("Failed to generate embeddings", "error", err)
		return nil, err
	}

	embeddings := make([][]float32, len(response.Data))
	for i, data := range response.Data {
		embeddings[i] = data.Embedding
	}

	log.Debug("Successfully generated embeddings",
		"count", len(embeddings),
		"dimension", len(embeddings[0]),
		"model", a.embeddingModel)

	return embeddings, nil
}

// ProcessMessages generates a response to the given messages using the OpenAI API.
func (a *OpenAIAdapter) ProcessMessages(ctx context.Context, messages []completion.Message, opts ...completion.Option) (string, error) {
	options := completion.DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	model := a.chatModel
	if options.Model != "" {
		model = options.Model
	}

	log.Debug("Processing chat request", "model", model, "messages", len(messages))

	request := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toChatMessages(messages),
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
	}

	response, err := a.client.CreateChatCompletion(ctx, request)
	if err != nil {
		log.Error("Failed to generate chat completion", "error", err)
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", errors.New("no response choices returned")
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)

	log.Debug("Successfully generated response",
		"tokens", response.Usage.TotalTokens,
		"model", model)

	return content, nil
}

// Process implements the completion.Engine interface by adapting a single
// prompt to the messages format.
func (a *OpenAIAdapter) Process(ctx context.Context, prompt string, opts ...completion.Option) (string, error) {
	messages := []completion.Message{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	return a.ProcessMessages(ctx, messages, opts...)
}

// CallFunction forces the model to call fn and returns the raw JSON argument
// string of the tool call.
func (a *OpenAIAdapter) CallFunction(ctx context.Context, messages []completion.Message, fn completion.FunctionDef, opts ...completion.Option) (string, error) {
	options := completion.DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	model := a.chatModel
	if options.Model != "" {
		model = options.Model
	}

	params, err := json.Marshal(fn.Parameters)
	if err != nil {
		return "", err
	}

	log.Debug("Processing function-call request",
		"model", model,
		"function", fn.Name,
		"messages", len(messages))

	request := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toChatMessages(messages),
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		Tools: []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        fn.Name,
					Description: fn.Description,
					Parameters:  json.RawMessage(params),
				},
			},
		},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: fn.Name},
		},
	}

	response, err := a.client.CreateChatCompletion(ctx, request)
	if err != nil {
		log.Error("Failed to generate function call", "error", err)
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", errors.New("no response choices returned")
	}

	for _, call := range response.Choices[0].Message.ToolCalls {
		if call.Function.Name == fn.Name {
			return call.Function.Arguments, nil
		}
	}

	return "", ErrNoToolCall
}

func toChatMessages(messages []completion.Message) []openai.ChatCompletionMessage {
	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return chatMessages
}
