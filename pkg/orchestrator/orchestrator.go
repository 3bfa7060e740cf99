// Package orchestrator sequences a conversational turn through the fixed
// pipeline: validate, fetch memory, route, execute, update memory, sanitize.
// Turns within a session are serialized; sessions proceed concurrently.
package orchestrator

import (
	"context"
	"sync"

	"github.com/procagent/procagent/pkg/executor"
	"github.com/procagent/procagent/pkg/guardrail"
	"github.com/procagent/procagent/pkg/log"
	"github.com/procagent/procagent/pkg/memory"
	"github.com/procagent/procagent/pkg/router"
	"github.com/procagent/procagent/pkg/session"
)

// State identifies a stage of the turn pipeline. States advance strictly
// forward; Rejected is reachable only from Validating.
type State string

const (
	StateStart          State = "start"
	StateValidating     State = "validating"
	StateFetchingMemory State = "fetching_memory"
	StateRouting        State = "routing"
	StateExecuting      State = "executing"
	StateUpdatingMemory State = "updating_memory"
	StateSanitizing     State = "sanitizing"
	StateDone           State = "done"
	StateRejected       State = "rejected"
)

// TurnResult is what a completed turn hands back to the caller.
type TurnResult struct {
	// Role is always the assistant role
	Role session.Role

	// Text is the sanitized user-facing response
	Text string

	// Metadata carries per-turn diagnostics: the final state, the routing
	// decision, degraded-mode flags, duplicate detection, and result counts
	Metadata map[string]interface{}
}

// Metadata keys populated on TurnResult.
const (
	MetaState             = "state"
	MetaRoute             = "route"
	MetaRejectionReasons  = "rejection_reasons"
	MetaShortTermDegraded = "short_term_degraded"
	MetaLongTermDegraded  = "long_term_degraded"
	MetaDuplicate         = "duplicate"
	MetaSuccess           = "success"
	MetaFailureKind       = "failure_kind"
	MetaTotalRows         = "total_rows"
	MetaSummaryRows       = "summary_rows"
	MetaCompleteRows      = "complete_rows"
)

// Orchestrator drives the turn pipeline. It is safe for concurrent use;
// turns sharing a session ID run one at a time.
type Orchestrator struct {
	validator      *guardrail.Validator
	memory         *memory.Coordinator
	router         *router.Router
	structured     executor.Executor
	conversational executor.Executor

	// sessionLocks maps session.ID to *sync.Mutex
	sessionLocks sync.Map

	// closers shut down resources owned by NewFromConfig
	closers []func() error
}

// NewOrchestrator creates an Orchestrator over already-constructed components.
func NewOrchestrator(
	validator *guardrail.Validator,
	coordinator *memory.Coordinator,
	intentRouter *router.Router,
	structured executor.Executor,
	conversational executor.Executor,
) *Orchestrator {
	return &Orchestrator{
		validator:      validator,
		memory:         coordinator,
		router:         intentRouter,
		structured:     structured,
		conversational: conversational,
	}
}

// SendTurn runs one user utterance through the pipeline and returns the
// assistant's turn. The context must carry a session.Context.
//
// A guardrail rejection is a completed turn, not an error: the result holds
// the fixed refusal message and no memory is read or written.
func (o *Orchestrator) SendTurn(ctx context.Context, text string) (TurnResult, error) {
	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return TurnResult{}, session.ErrMissingSessionContext
	}

	mu := o.sessionLock(sessCtx.SessionID)
	mu.Lock()
	defer mu.Unlock()

	state := o.advance(ctx, StateStart, StateValidating)
	validation := o.validator.ValidateInput(ctx, text)
	if !validation.Accepted {
		state = o.advance(ctx, state, StateRejected)
		log.InfoContext(ctx, "Turn rejected by guardrails", "error", validation.Err())
		return TurnResult{
			Role: session.RoleAssistant,
			Text: guardrail.RefusalMessage,
			Metadata: map[string]interface{}{
				MetaState:            string(state),
				MetaRejectionReasons: validation.Reasons,
			},
		}, nil
	}

	state = o.advance(ctx, state, StateFetchingMemory)
	fetched := o.memory.Fetch(ctx, text)

	state = o.advance(ctx, state, StateRouting)
	decision := o.router.Classify(ctx, text, fetched.RecentMessages)

	state = o.advance(ctx, state, StateExecuting)
	var result executor.ExecutionResult
	switch decision {
	case router.Conversational:
		result = o.conversational.Execute(ctx, text, fetched)
	default:
		result = o.structured.Execute(ctx, text, fetched)
	}

	state = o.advance(ctx, state, StateUpdatingMemory)
	if err := o.memory.Update(ctx, text, result.Message, turnMetadata(decision, result)); err != nil {
		// The response is already decided; a degraded write never fails the turn
		log.WarnContext(ctx, "Memory update degraded", "error", err)
	}

	state = o.advance(ctx, state, StateSanitizing)
	sanitized := o.validator.SanitizeOutput(ctx, result.Message)

	state = o.advance(ctx, state, StateDone)

	metadata := map[string]interface{}{
		MetaState:             string(state),
		MetaRoute:             decision.String(),
		MetaShortTermDegraded: fetched.ShortTermDegraded,
		MetaLongTermDegraded:  fetched.LongTermDegraded,
		MetaDuplicate:         fetched.IsDuplicate,
		MetaSuccess:           result.Success,
	}
	if result.FailureKind != "" {
		metadata[MetaFailureKind] = result.FailureKind
	}
	if decision == router.StructuredQuery && result.Success {
		metadata[MetaTotalRows] = result.Total
		metadata[MetaSummaryRows] = len(result.Summary)
		metadata[MetaCompleteRows] = len(result.Complete)
	}

	return TurnResult{
		Role:     session.RoleAssistant,
		Text:     sanitized,
		Metadata: metadata,
	}, nil
}

// ClearSession drops the session's conversation log. Semantic memory is
// retained. The context must carry a session.Context.
func (o *Orchestrator) ClearSession(ctx context.Context) error {
	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return session.ErrMissingSessionContext
	}

	mu := o.sessionLock(sessCtx.SessionID)
	mu.Lock()
	defer mu.Unlock()

	return o.memory.ClearSession(ctx)
}

// Close releases resources owned by an orchestrator built through
// NewFromConfig. Orchestrators built over caller-owned components are
// no-ops here.
func (o *Orchestrator) Close() error {
	var firstErr error
	for _, closeFn := range o.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// advance logs a state transition and returns the new state.
func (o *Orchestrator) advance(ctx context.Context, from, to State) State {
	log.DebugContext(ctx, "Turn state transition",
		"from", string(from),
		"to", string(to))
	return to
}

// sessionLock returns the mutex serializing turns for one session.
func (o *Orchestrator) sessionLock(id session.ID) *sync.Mutex {
	mu, _ := o.sessionLocks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// turnMetadata builds the metadata stored alongside the turn's messages.
func turnMetadata(decision router.Decision, result executor.ExecutionResult) map[string]interface{} {
	metadata := map[string]interface{}{
		"route":   decision.String(),
		"success": result.Success,
	}
	if result.Spec != nil {
		metadata["operation"] = string(result.Spec.Operation)
	}
	if result.Success && decision == router.StructuredQuery {
		metadata["total_rows"] = result.Total
	}
	return metadata
}
