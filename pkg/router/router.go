// Package router classifies a user utterance into one of a closed set of
// task categories by delegating to the completion service. Classification
// never blocks the pipeline: anything unexpected resolves to the
// structured-query default.
package router

import (
	"context"
	"strings"

	"github.com/procagent/procagent/pkg/completion"
	"github.com/procagent/procagent/pkg/log"
	"github.com/procagent/procagent/pkg/mem/shortterm"
)

// Decision is the routing outcome for a single utterance.
type Decision string

const (
	// StructuredQuery routes to the structured-data executor.
	StructuredQuery Decision = "data_query"

	// Conversational routes to the conversational executor.
	Conversational Decision = "general_chat"
)

// DefaultDecision is applied whenever classification is ambiguous,
// malformed, or unavailable. Fail-open toward the data path, never toward
// silence.
const DefaultDecision = StructuredQuery

const classifyInstruction = `You are an intent classifier for a procurement data assistant.
Classify the user's message into exactly one of two categories:

data_query    - the user wants information from the purchasing records
                (counts, totals, lookups, aggregations, date ranges)
general_chat  - greetings, small talk, or questions unrelated to the records

Respond with exactly one token: data_query or general_chat. No other text.`

// Router classifies utterances. It is stateless and safe for concurrent use.
type Router struct {
	engine completion.Engine
}

// NewRouter creates a new Router backed by the given completion engine.
func NewRouter(engine completion.Engine) *Router {
	return &Router{engine: engine}
}

// Classify returns the routing decision for the utterance. Recent messages
// give the classifier short-range context for follow-up phrasings.
func (r *Router) Classify(ctx context.Context, utterance string, recent []shortterm.Message) Decision {
	messages := []completion.Message{
		{Role: "system", Content: classifyInstruction},
	}

	// A short window of prior turns disambiguates follow-ups like "and in 2015?"
	start := len(recent) - 4
	if start < 0 {
		start = 0
	}
	for _, msg := range recent[start:] {
		messages = append(messages, completion.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	messages = append(messages, completion.Message{Role: "user", Content: utterance})

	response, err := r.engine.ProcessMessages(ctx, messages,
		completion.WithTemperature(0),
		completion.WithMaxTokens(10),
	)
	if err != nil {
		log.WarnContext(ctx, "Classification unavailable, using default route",
			"default", string(DefaultDecision),
			"error", err)
		return DefaultDecision
	}

	decision := parseDecision(response)
	log.DebugContext(ctx, "Routed utterance",
		"decision", string(decision),
		"raw_response", response)
	return decision
}

// parseDecision maps the raw classifier output onto the closed decision set.
// Anything outside the set resolves to the default.
func parseDecision(response string) Decision {
	token := strings.ToLower(strings.TrimSpace(response))
	token = strings.Trim(token, `"'.`)

	switch Decision(token) {
	case StructuredQuery:
		return StructuredQuery
	case Conversational:
		return Conversational
	default:
		return DefaultDecision
	}
}

// String implements fmt.Stringer.
func (d Decision) String() string {
	return string(d)
}
