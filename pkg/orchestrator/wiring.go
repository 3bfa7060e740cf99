package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/procagent/procagent/pkg/completion"
	completionmock "github.com/procagent/procagent/pkg/completion/adapters/mock"
	"github.com/procagent/procagent/pkg/completion/adapters/openai"
	"github.com/procagent/procagent/pkg/config"
	"github.com/procagent/procagent/pkg/executor"
	"github.com/procagent/procagent/pkg/guardrail"
	"github.com/procagent/procagent/pkg/log"
	"github.com/procagent/procagent/pkg/mem/longterm"
	"github.com/procagent/procagent/pkg/mem/longterm/adapters/chromem"
	longtermmock "github.com/procagent/procagent/pkg/mem/longterm/adapters/mock"
	"github.com/procagent/procagent/pkg/mem/longterm/adapters/pgvector"
	"github.com/procagent/procagent/pkg/mem/shortterm"
	"github.com/procagent/procagent/pkg/mem/shortterm/adapters/boltdb"
	shorttermmock "github.com/procagent/procagent/pkg/mem/shortterm/adapters/mock"
	"github.com/procagent/procagent/pkg/mem/shortterm/adapters/postgres"
	shorttermsqlite "github.com/procagent/procagent/pkg/mem/shortterm/adapters/sqlite"
	"github.com/procagent/procagent/pkg/memory"
	"github.com/procagent/procagent/pkg/router"
	"github.com/procagent/procagent/pkg/scripting"
	"github.com/procagent/procagent/pkg/source"
	"github.com/procagent/procagent/pkg/source/adapters/memstore"
	sourcesqlite "github.com/procagent/procagent/pkg/source/adapters/sqlite"
)

// NewFromConfig builds a fully wired Orchestrator from configuration. The
// returned orchestrator owns every store and engine it constructs; Close
// releases them.
func NewFromConfig(cfg *config.Config) (*Orchestrator, error) {
	var closers []func() error
	closeAll := func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}

	engine, err := initCompletionEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize completion engine: %w", err)
	}
	if cfg.Completion.Timeout > 0 {
		engine = withTimeout(engine, cfg.Completion.Timeout)
	}

	scriptEngine, err := initScriptEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scripting engine: %w", err)
	}
	if scriptEngine != nil {
		closers = append(closers, scriptEngine.Close)
	}

	shortTermStore, err := initShortTermStore(cfg)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to initialize short-term store: %w", err)
	}
	closers = append(closers, func() error { return shortTermStore.Close() })

	longTermStore, err := initLongTermStore(cfg)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to initialize long-term store: %w", err)
	}
	closers = append(closers, func() error { return longTermStore.Close() })

	sourceStore, err := initSourceStore(cfg)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to initialize source store: %w", err)
	}
	closers = append(closers, func() error { return sourceStore.Close() })

	memoryOpts := []memory.Option{}
	guardrailOpts := []guardrail.Option{}
	if scriptEngine != nil {
		memoryOpts = append(memoryOpts, memory.WithScriptEngine(scriptEngine))
		guardrailOpts = append(guardrailOpts, guardrail.WithScriptEngine(scriptEngine))
	}

	coordinator := memory.NewCoordinator(shortTermStore, longTermStore, engine, memory.Config{
		RecentLimit:   cfg.Memory.RecentLimit,
		TopK:          cfg.Memory.TopK,
		DedupLookback: cfg.Memory.DedupLookback,
		StoreTimeout:  cfg.Memory.StoreTimeout,
	}, memoryOpts...)

	validator := guardrail.NewValidator(guardrail.Config{
		MaxInputChars:  cfg.Guardrail.MaxInputChars,
		MaxOutputChars: cfg.Guardrail.MaxOutputChars,
	}, guardrailOpts...)

	structured := executor.NewStructuredExecutor(engine, sourceStore, executor.StructuredConfig{
		SummaryCap:        cfg.Executor.SummaryCap,
		CompleteCap:       cfg.Executor.CompleteCap,
		SchemaDescription: cfg.Source.SchemaDescription,
	})
	conversational := executor.NewConversationalExecutor(engine, executor.ConversationalConfig{
		ContextWindow: cfg.Executor.ContextWindow,
	})

	orch := NewOrchestrator(validator, coordinator, router.NewRouter(engine), structured, conversational)
	orch.closers = closers

	log.Debug("Orchestrator initialized",
		"short_term", cfg.ShortTerm.Type,
		"long_term", cfg.LongTerm.Type,
		"source", cfg.Source.Type,
		"completion", cfg.Completion.Provider,
		"scripting_enabled", cfg.Scripting.Enabled)

	return orch, nil
}

func initShortTermStore(cfg *config.Config) (shortterm.Store, error) {
	switch strings.ToLower(cfg.ShortTerm.Type) {
	case "sqlite":
		return shorttermsqlite.Open(cfg.ShortTerm.SQLite.Path)
	case "postgres":
		return postgres.NewPostgresStore(cfg.ShortTerm.Postgres.DSN)
	case "boltdb":
		return boltdb.Open(cfg.ShortTerm.Bolt.Path)
	case "mock":
		return shorttermmock.NewMockStore(), nil
	default:
		return nil, fmt.Errorf("unsupported short-term store type: %s", cfg.ShortTerm.Type)
	}
}

func initLongTermStore(cfg *config.Config) (longterm.Store, error) {
	switch strings.ToLower(cfg.LongTerm.Type) {
	case "chromem":
		return chromem.NewChromemStore(chromem.Config{
			Path:       cfg.LongTerm.Chromem.Path,
			Collection: cfg.LongTerm.Chromem.Collection,
			Compress:   cfg.LongTerm.Chromem.Compress,
		})
	case "pgvector":
		return pgvector.NewPgvectorStore(context.Background(), pgvector.Config{
			ConnectionString: cfg.LongTerm.PgVector.ConnectionString,
			TableName:        cfg.LongTerm.PgVector.TableName,
			DimensionSize:    cfg.LongTerm.PgVector.Dimensions,
			DistanceMetric:   cfg.LongTerm.PgVector.DistanceMetric,
		})
	case "mock":
		return longtermmock.NewMockStore(), nil
	default:
		return nil, fmt.Errorf("unsupported long-term store type: %s", cfg.LongTerm.Type)
	}
}

func initSourceStore(cfg *config.Config) (source.Store, error) {
	switch strings.ToLower(cfg.Source.Type) {
	case "memory":
		return memstore.NewMemStore(), nil
	case "sqlite":
		return sourcesqlite.Open(cfg.Source.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported source store type: %s", cfg.Source.Type)
	}
}

func initCompletionEngine(cfg *config.Config) (completion.Engine, error) {
	switch strings.ToLower(cfg.Completion.Provider) {
	case "openai":
		return openai.NewOpenAIAdapter(openai.Config{
			APIKey:         cfg.Completion.OpenAI.APIKey,
			ChatModel:      cfg.Completion.OpenAI.Model,
			EmbeddingModel: cfg.Completion.OpenAI.EmbeddingModel,
			BaseURL:        cfg.Completion.OpenAI.BaseURL,
		})
	case "mock":
		return completionmock.NewMockEngine(), nil
	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", cfg.Completion.Provider)
	}
}

func initScriptEngine(cfg *config.Config) (scripting.Engine, error) {
	if !cfg.Scripting.Enabled {
		return nil, nil
	}

	engine, err := scripting.NewLuaEngine(scripting.DefaultConfig())
	if err != nil {
		return nil, err
	}

	for _, dir := range cfg.Scripting.Paths {
		if err := engine.LoadScriptDir(dir); err != nil {
			engine.Close()
			return nil, fmt.Errorf("failed to load scripts from %s: %w", dir, err)
		}
	}

	return engine, nil
}

// timeoutEngine bounds every completion call with a deadline.
type timeoutEngine struct {
	inner   completion.Engine
	timeout time.Duration
}

func withTimeout(inner completion.Engine, timeout time.Duration) completion.Engine {
	return &timeoutEngine{inner: inner, timeout: timeout}
}

func (e *timeoutEngine) Process(ctx context.Context, input string, opts ...completion.Option) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.inner.Process(ctx, input, opts...)
}

func (e *timeoutEngine) ProcessMessages(ctx context.Context, messages []completion.Message, opts ...completion.Option) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.inner.ProcessMessages(ctx, messages, opts...)
}

func (e *timeoutEngine) CallFunction(ctx context.Context, messages []completion.Message, fn completion.FunctionDef, opts ...completion.Option) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.inner.CallFunction(ctx, messages, fn, opts...)
}

func (e *timeoutEngine) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.inner.GenerateEmbeddings(ctx, texts)
}
