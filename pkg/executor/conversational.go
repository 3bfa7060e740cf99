package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/procagent/procagent/pkg/completion"
	"github.com/procagent/procagent/pkg/log"
	"github.com/procagent/procagent/pkg/memory"
)

// ApologyMessage is the fixed substitute when the completion service is
// entirely unreachable for a conversational turn.
const ApologyMessage = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

const personaInstruction = `You are a friendly procurement data assistant. Answer conversationally and briefly. If the user seems to want data from the purchasing records, suggest they ask a concrete question about them.`

// ConversationalConfig configures the conversational executor.
type ConversationalConfig struct {
	// ContextWindow is how many recent messages ground the reply
	ContextWindow int
}

// DefaultConversationalConfig returns the default conversational executor
// configuration.
func DefaultConversationalConfig() ConversationalConfig {
	return ConversationalConfig{ContextWindow: 5}
}

// ConversationalExecutor produces free-text replies grounded in the recent
// conversation and any relevant semantic context.
type ConversationalExecutor struct {
	engine completion.Engine
	config ConversationalConfig
}

// NewConversationalExecutor creates a new ConversationalExecutor.
func NewConversationalExecutor(engine completion.Engine, config ConversationalConfig) *ConversationalExecutor {
	if config.ContextWindow <= 0 {
		config.ContextWindow = DefaultConversationalConfig().ContextWindow
	}
	return &ConversationalExecutor{
		engine: engine,
		config: config,
	}
}

// Execute implements the Executor interface. The turn always succeeds; an
// unreachable completion service substitutes a fixed apology.
func (e *ConversationalExecutor) Execute(ctx context.Context, utterance string, fetched memory.FetchResult) ExecutionResult {
	system := personaInstruction
	if past := relevantContext(fetched); past != "" {
		system = fmt.Sprintf("%s\n\nPossibly relevant past exchanges:\n%s", system, past)
	}

	messages := []completion.Message{
		{Role: "system", Content: system},
	}

	recent := fetched.RecentMessages
	if len(recent) > e.config.ContextWindow {
		recent = recent[len(recent)-e.config.ContextWindow:]
	}
	for _, msg := range recent {
		messages = append(messages, completion.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	messages = append(messages, completion.Message{Role: "user", Content: utterance})

	reply, err := e.engine.ProcessMessages(ctx, messages)
	if err != nil {
		log.WarnContext(ctx, "Conversational generation unavailable", "error", err)
		return ExecutionResult{
			Success: true,
			Message: ApologyMessage,
		}
	}

	return ExecutionResult{
		Success: true,
		Message: reply,
	}
}

// relevantContext flattens the semantic matches into prompt text.
func relevantContext(fetched memory.FetchResult) string {
	if len(fetched.RelevantContext) == 0 {
		return ""
	}

	var b strings.Builder
	for _, match := range fetched.RelevantContext {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", match.Query, match.Response)
	}
	return b.String()
}
