// Package executor implements the two task executors the orchestrator can
// dispatch to: a structured-data executor running the two-tier query
// protocol against the source store, and a conversational executor
// producing context-grounded free text.
package executor

import (
	"context"

	"github.com/procagent/procagent/pkg/memory"
	"github.com/procagent/procagent/pkg/source"
)

// ExecutionResult is the single atomic outcome of a turn's execution. Both
// result tiers and the count travel together so callers reason about one
// value, not three calls.
type ExecutionResult struct {
	// Success is false when translation or execution failed
	Success bool

	// Message is the user-facing text for this turn
	Message string

	// Summary is the bounded fast tier that drives the explanation
	Summary []source.Record

	// Complete is the larger-capped tier used for full-data inspection
	Complete []source.Record

	// Total is the authoritative count of matching rows
	Total int

	// Spec is the originating query specification, when one was produced
	Spec *source.QuerySpec

	// FailureKind distinguishes failure causes in logs; empty on success
	FailureKind string
}

// Executor is the interface both task executors implement.
type Executor interface {
	// Execute produces the turn's result from the utterance and the fetched
	// memory context. Failures are represented inside the result, never as
	// a returned error.
	Execute(ctx context.Context, utterance string, fetched memory.FetchResult) ExecutionResult
}
