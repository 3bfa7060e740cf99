package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/procagent/procagent/pkg/completion"
	"github.com/procagent/procagent/pkg/errors"
	"github.com/procagent/procagent/pkg/log"
	"github.com/procagent/procagent/pkg/memory"
	"github.com/procagent/procagent/pkg/source"
)

// Failure kinds recorded on unsuccessful structured executions. Logging
// only; the user sees the message text.
const (
	FailureTranslation = "translation_failed"
	FailureExecution   = "execution_failed"
)

// rephraseSuggestion closes every structured failure message.
const rephraseSuggestion = "Please try rephrasing your question."

// queryFuncName is the function the completion service is forced to call
// when translating an utterance.
const queryFuncName = "generate_query"

const translateInstruction = `You translate natural-language questions about purchasing records into structured queries.

%s

Use the generate_query function. For date predicates, emit {"__datetime__": "YYYY-MM-DD"} literals.
Operations: "retrieve" returns matching records, "aggregate" runs a pipeline of $match/$group/$sort/$limit stages, "count" returns only the number of matches.`

const explainInstruction = `You are a procurement data assistant. Given the user's question, the executed query, and a sample of result rows, answer the question concisely in plain language. State the total count when it is relevant. Do not mention the query syntax.`

// querySchema is the JSON Schema handed to the completion service for
// structured output.
var querySchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"operation": map[string]interface{}{
			"type": "string",
			"enum": []string{"retrieve", "aggregate", "count"},
		},
		"filter": map[string]interface{}{
			"type":        "object",
			"description": "Filter predicate with $eq/$ne/$gt/$gte/$lt/$lte/$in/$nin/$and/$or operators",
		},
		"pipeline": map[string]interface{}{
			"type":        "array",
			"description": "Aggregation stages for aggregate operations",
			"items":       map[string]interface{}{"type": "object"},
		},
		"sort": map[string]interface{}{
			"type":        "object",
			"description": "Field to direction (1 ascending, -1 descending)",
		},
	},
	"required": []string{"operation"},
}

// StructuredConfig configures the structured-data executor.
type StructuredConfig struct {
	// SummaryCap is the row cap for the fast tier
	SummaryCap int

	// CompleteCap is the row cap for the full-data tier
	CompleteCap int

	// SchemaDescription describes the source records to the translator
	SchemaDescription string
}

// DefaultStructuredConfig returns the default structured executor configuration.
func DefaultStructuredConfig() StructuredConfig {
	return StructuredConfig{
		SummaryCap:  100,
		CompleteCap: 10000,
	}
}

// StructuredExecutor runs the two-tier query protocol: translate, execute
// with the summary cap, execute with the complete cap, count, explain.
type StructuredExecutor struct {
	engine completion.Engine
	store  source.Store
	config StructuredConfig
}

// NewStructuredExecutor creates a new StructuredExecutor.
func NewStructuredExecutor(engine completion.Engine, store source.Store, config StructuredConfig) *StructuredExecutor {
	if config.SummaryCap <= 0 {
		config.SummaryCap = DefaultStructuredConfig().SummaryCap
	}
	if config.CompleteCap < config.SummaryCap {
		config.CompleteCap = DefaultStructuredConfig().CompleteCap
	}

	return &StructuredExecutor{
		engine: engine,
		store:  store,
		config: config,
	}
}

// Execute implements the Executor interface.
func (e *StructuredExecutor) Execute(ctx context.Context, utterance string, fetched memory.FetchResult) ExecutionResult {
	spec, err := e.translate(ctx, utterance)
	if err != nil {
		log.WarnContext(ctx, "Query translation failed", "error", err)
		return failureResult(FailureTranslation, "I couldn't turn that into a data query.")
	}

	// A count query has no row tiers; only the total is executed
	if spec.Operation == source.OpCount {
		total, err := e.store.Count(ctx, spec)
		if err != nil {
			log.WarnContext(ctx, "Count execution failed",
				"error", errors.Wrap(errors.ErrExecutionFailed, "%v", err))
			return failureResult(FailureExecution, "The data query could not be executed.")
		}
		return ExecutionResult{
			Success: true,
			Message: e.explain(ctx, utterance, spec, nil, total),
			Total:   total,
			Spec:    &spec,
		}
	}

	// Fast tier drives the explanation
	summary, err := e.store.Execute(ctx, spec.WithLimit(e.config.SummaryCap))
	if err != nil {
		log.WarnContext(ctx, "Summary-tier execution failed",
			"error", errors.Wrap(errors.ErrExecutionFailed, "%v", err))
		return failureResult(FailureExecution, "The data query could not be executed.")
	}

	// Full tier exists for inspection and export only
	complete, err := e.store.Execute(ctx, spec.WithLimit(e.config.CompleteCap))
	if err != nil {
		log.WarnContext(ctx, "Complete-tier execution failed",
			"error", errors.Wrap(errors.ErrExecutionFailed, "%v", err))
		return failureResult(FailureExecution, "The data query could not be executed.")
	}

	total, err := e.store.Count(ctx, spec)
	if err != nil {
		log.WarnContext(ctx, "Count execution failed",
			"error", errors.Wrap(errors.ErrExecutionFailed, "%v", err))
		return failureResult(FailureExecution, "The data query could not be executed.")
	}

	message := e.explain(ctx, utterance, spec, summary, total)

	log.DebugContext(ctx, "Structured execution complete",
		"operation", string(spec.Operation),
		"summary_rows", len(summary),
		"complete_rows", len(complete),
		"total", total)

	return ExecutionResult{
		Success:  true,
		Message:  message,
		Summary:  summary,
		Complete: complete,
		Total:    total,
		Spec:     &spec,
	}
}

// translate asks the completion service for a query spec and validates it.
func (e *StructuredExecutor) translate(ctx context.Context, utterance string) (source.QuerySpec, error) {
	schemaDesc := e.config.SchemaDescription
	if schemaDesc == "" {
		schemaDesc = "The records are purchasing documents with free-form fields."
	}

	messages := []completion.Message{
		{Role: "system", Content: fmt.Sprintf(translateInstruction, schemaDesc)},
		{Role: "user", Content: utterance},
	}

	args, err := e.engine.CallFunction(ctx, messages, completion.FunctionDef{
		Name:        queryFuncName,
		Description: "Generate a structured query for the purchasing records",
		Parameters:  querySchema,
	}, completion.WithTemperature(0))
	if err != nil {
		return source.QuerySpec{}, errors.Wrap(errors.ErrCompletionUnavailable, "%v", err)
	}

	var spec source.QuerySpec
	if err := json.Unmarshal([]byte(args), &spec); err != nil {
		return source.QuerySpec{}, errors.Wrap(errors.ErrTranslationFailed, "malformed query arguments: %v", err)
	}

	// Translated specs never carry their own cap; the tiers set it
	spec.Limit = 0

	if err := spec.Validate(); err != nil {
		return source.QuerySpec{}, errors.Wrap(errors.ErrTranslationFailed, "invalid query spec: %v", err)
	}

	return spec, nil
}

// explain generates the user-facing answer from the summary tier only. A
// generation failure degrades to a plain count statement rather than
// failing the turn.
func (e *StructuredExecutor) explain(ctx context.Context, utterance string, spec source.QuerySpec, summary []source.Record, total int) string {
	specJSON, _ := json.Marshal(spec)
	sampleJSON, _ := json.Marshal(summary)

	prompt := fmt.Sprintf("Question: %s\nQuery: %s\nTotal matching rows: %d\nResult sample: %s",
		utterance, specJSON, total, sampleJSON)

	messages := []completion.Message{
		{Role: "system", Content: explainInstruction},
		{Role: "user", Content: prompt},
	}

	message, err := e.engine.ProcessMessages(ctx, messages)
	if err != nil || strings.TrimSpace(message) == "" {
		log.WarnContext(ctx, "Explanation generation failed, using count fallback", "error", err)
		return fmt.Sprintf("The query matched %d records.", total)
	}

	return message
}

func failureResult(kind, cause string) ExecutionResult {
	return ExecutionResult{
		Success:     false,
		Message:     fmt.Sprintf("%s %s", cause, rephraseSuggestion),
		FailureKind: kind,
	}
}
