// Package memory composes the short-term and long-term stores into the
// single fetch/update contract consumed by the orchestrator. The coordinator
// owns duplicate suppression and degraded-mode behavior; neither store knows
// about the other.
package memory

import (
	"context"
	"strings"
	"time"

	"github.com/procagent/procagent/pkg/completion"
	"github.com/procagent/procagent/pkg/errors"
	"github.com/procagent/procagent/pkg/log"
	"github.com/procagent/procagent/pkg/mem/longterm"
	"github.com/procagent/procagent/pkg/mem/shortterm"
	"github.com/procagent/procagent/pkg/scripting"
	"github.com/procagent/procagent/pkg/session"
)

// beforeStoreFuncName is the optional Lua hook consulted before a long-term
// write. Returning false vetoes the write.
const beforeStoreFuncName = "before_longterm_store"

// Config contains configuration options for the coordinator.
type Config struct {
	// RecentLimit is how many recent messages a fetch returns
	RecentLimit int

	// TopK is how many semantic matches a fetch returns
	TopK int

	// DedupLookback is how many recent user messages the duplicate
	// suppression check inspects
	DedupLookback int

	// StoreTimeout bounds each individual backing-store call
	StoreTimeout time.Duration
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		RecentLimit:   10,
		TopK:          3,
		DedupLookback: 5,
		StoreTimeout:  5 * time.Second,
	}
}

// FetchResult holds everything a fetch produced, including explicit degraded
// flags so callers can distinguish "no context exists" from "fetch failed".
type FetchResult struct {
	// RecentMessages is the session's recent conversation log, oldest first
	RecentMessages []shortterm.Message

	// RelevantContext is the cross-session semantic context, most similar first
	RelevantContext []longterm.Match

	// ShortTermDegraded is true when the conversation log was unreachable
	ShortTermDegraded bool

	// LongTermDegraded is true when semantic retrieval was unavailable,
	// whether the store or the embedding service failed
	LongTermDegraded bool

	// IsDuplicate is true when the query exactly matches a recent user
	// message in this session after normalization
	IsDuplicate bool

	// DuplicateResponse is the assistant response that followed the
	// duplicated query, when one exists
	DuplicateResponse string
}

// Degraded reports whether either memory tier failed during the fetch.
func (r FetchResult) Degraded() bool {
	return r.ShortTermDegraded || r.LongTermDegraded
}

// Coordinator composes the two memory tiers. It is stateless and safe for
// concurrent use; per-session ordering is the orchestrator's concern.
type Coordinator struct {
	shortTerm shortterm.Store
	longTerm  longterm.Store
	embedder  completion.Engine
	config    Config

	// scriptEngine is the optional Lua policy-hook engine
	scriptEngine scripting.Engine
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithScriptEngine attaches a Lua policy-hook engine. A loaded
// before_longterm_store function may veto long-term writes; hook failures
// are logged and ignored.
func WithScriptEngine(engine scripting.Engine) Option {
	return func(c *Coordinator) {
		c.scriptEngine = engine
	}
}

// NewCoordinator creates a new Coordinator over the given stores. The
// completion engine supplies embeddings for long-term storage and retrieval.
func NewCoordinator(shortTerm shortterm.Store, longTerm longterm.Store, embedder completion.Engine, config Config, opts ...Option) *Coordinator {
	if config.RecentLimit <= 0 {
		config.RecentLimit = DefaultConfig().RecentLimit
	}
	if config.TopK <= 0 {
		config.TopK = DefaultConfig().TopK
	}
	if config.DedupLookback <= 0 {
		config.DedupLookback = DefaultConfig().DedupLookback
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultConfig().StoreTimeout
	}

	c := &Coordinator{
		shortTerm: shortTerm,
		longTerm:  longTerm,
		embedder:  embedder,
		config:    config,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves the recent conversation log and relevant semantic context
// for the query. It never returns an error: any backing-store failure
// degrades to a partial result with the corresponding flag set.
func (c *Coordinator) Fetch(ctx context.Context, query string) FetchResult {
	var result FetchResult

	recentCtx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	recent, err := c.shortTerm.Recent(recentCtx, c.config.RecentLimit)
	cancel()
	if err != nil {
		log.WarnContext(ctx, "Short-term fetch degraded", "error", err)
		result.ShortTermDegraded = true
	} else {
		result.RecentMessages = recent
		result.IsDuplicate, result.DuplicateResponse = c.findDuplicate(recent, query)
	}

	embeddings, err := c.embedder.GenerateEmbeddings(ctx, []string{query})
	if err != nil || len(embeddings) == 0 {
		log.WarnContext(ctx, "Long-term fetch degraded: embedding unavailable", "error", err)
		result.LongTermDegraded = true
		return result
	}

	similarCtx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	matches, err := c.longTerm.Similar(similarCtx, embeddings[0], c.config.TopK)
	cancel()
	if err != nil {
		log.WarnContext(ctx, "Long-term fetch degraded", "error", err)
		result.LongTermDegraded = true
		return result
	}

	result.RelevantContext = matches
	return result
}

// Update persists the completed turn: both messages always go to the
// short-term log; the long-term entry is written only when the query is not
// a duplicate within the lookback window. Writes run on a detached context
// so caller cancellation cannot produce a partial conversation log.
//
// The returned error wraps errors.ErrMemoryDegraded and reports partial
// failure; the turn's response is already decided, so callers log and move on.
func (c *Coordinator) Update(ctx context.Context, query, response string, metadata map[string]interface{}) error {
	writeCtx := context.WithoutCancel(ctx)

	// Dedup inspects the log as it was before this turn is appended
	isDuplicate := c.checkDuplicate(writeCtx, query)

	var firstErr error
	if err := c.append(writeCtx, session.RoleUser, query, metadata); err != nil {
		log.WarnContext(ctx, "Short-term append failed for user message", "error", err)
		firstErr = errors.Wrap(errors.ErrMemoryDegraded, "user message append: %v", err)
	}
	if err := c.append(writeCtx, session.RoleAssistant, response, metadata); err != nil {
		log.WarnContext(ctx, "Short-term append failed for assistant message", "error", err)
		if firstErr == nil {
			firstErr = errors.Wrap(errors.ErrMemoryDegraded, "assistant message append: %v", err)
		}
	}

	if isDuplicate {
		log.DebugContext(ctx, "Skipping long-term write for duplicate query")
		return firstErr
	}

	if c.vetoedByHook(writeCtx, query, response) {
		log.DebugContext(ctx, "Long-term write vetoed by policy hook")
		return firstErr
	}

	if err := c.storeLongTerm(writeCtx, query, response, metadata); err != nil {
		log.WarnContext(ctx, "Long-term store failed", "error", err)
		if firstErr == nil {
			firstErr = errors.Wrap(errors.ErrMemoryDegraded, "long-term store: %v", err)
		}
	}

	return firstErr
}

// ClearSession removes the session's short-term log. The long-term archive
// is retained.
func (c *Coordinator) ClearSession(ctx context.Context) error {
	clearCtx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()
	return c.shortTerm.Clear(clearCtx)
}

func (c *Coordinator) append(ctx context.Context, role session.Role, text string, metadata map[string]interface{}) error {
	appendCtx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	_, err := c.shortTerm.Append(appendCtx, shortterm.Message{
		Role:     role,
		Content:  text,
		Metadata: metadata,
	})
	return err
}

func (c *Coordinator) storeLongTerm(ctx context.Context, query, response string, metadata map[string]interface{}) error {
	embeddings, err := c.embedder.GenerateEmbeddings(ctx, []string{query})
	if err != nil {
		return err
	}
	if len(embeddings) == 0 {
		return errors.Wrap(errors.ErrMemoryDegraded, "no embedding returned")
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	_, err = c.longTerm.Store(storeCtx, longterm.Entry{
		Query:     query,
		Response:  response,
		Embedding: embeddings[0],
		Metadata:  metadata,
	})
	return err
}

// checkDuplicate reads the recent log and reports whether the query is an
// exact normalized duplicate within the lookback window. A read failure
// counts as not-duplicate: losing one suppression beats losing the entry.
func (c *Coordinator) checkDuplicate(ctx context.Context, query string) bool {
	recentCtx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	// The window counts user messages, so read enough rows for both roles
	recent, err := c.shortTerm.Recent(recentCtx, c.config.DedupLookback*2)
	if err != nil {
		return false
	}

	isDup, _ := c.findDuplicate(recent, query)
	return isDup
}

// findDuplicate scans the last DedupLookback user messages for an exact
// normalized match and returns the assistant response that followed it.
func (c *Coordinator) findDuplicate(recent []shortterm.Message, query string) (bool, string) {
	normalized := normalize(query)
	if normalized == "" {
		return false, ""
	}

	seen := 0
	for i := len(recent) - 1; i >= 0 && seen < c.config.DedupLookback; i-- {
		if recent[i].Role != session.RoleUser {
			continue
		}
		seen++

		if normalize(recent[i].Content) != normalized {
			continue
		}

		// The assistant reply, when present, directly follows the match
		if i+1 < len(recent) && recent[i+1].Role == session.RoleAssistant {
			return true, recent[i+1].Content
		}
		return true, ""
	}

	return false, ""
}

// vetoedByHook consults the optional before_longterm_store Lua hook. The
// hook vetoes by returning false; anything else, including hook errors,
// allows the write.
func (c *Coordinator) vetoedByHook(ctx context.Context, query, response string) bool {
	if c.scriptEngine == nil {
		return false
	}

	result, err := c.scriptEngine.ExecuteFunction(ctx, beforeStoreFuncName, query, response)
	if err != nil {
		if !scripting.IsFunctionNotFound(err) {
			log.WarnContext(ctx, "Error calling memory hook",
				"hook", beforeStoreFuncName,
				"error", err)
		}
		return false
	}

	allowed, ok := result.(bool)
	return ok && !allowed
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
