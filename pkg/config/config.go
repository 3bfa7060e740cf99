package config

import "time"

// Config represents the top-level configuration for the pipeline.
type Config struct {
	// ShortTerm configures the per-session conversation log store
	ShortTerm ShortTermConfig `yaml:"short_term"`

	// LongTerm configures the semantic memory store
	LongTerm LongTermConfig `yaml:"long_term"`

	// Source configures the structured-data source record store
	Source SourceConfig `yaml:"source"`

	// Completion configures the language-model completion service
	Completion CompletionConfig `yaml:"completion"`

	// Memory configures coordinator behavior (retrieval limits, dedup window)
	Memory MemoryConfig `yaml:"memory"`

	// Guardrail configures input validation and output sanitation bounds
	Guardrail GuardrailConfig `yaml:"guardrail"`

	// Executor configures the structured-data executor result tiers
	Executor ExecutorConfig `yaml:"executor"`

	// Scripting configures the Lua policy-hook engine
	Scripting ScriptingConfig `yaml:"scripting"`

	// Logging configures the logging behavior
	Logging LoggingConfig `yaml:"logging"`
}

// ShortTermConfig configures the short-term conversation store.
type ShortTermConfig struct {
	// Type specifies the backend ("sqlite", "postgres", "boltdb", "mock")
	Type string `yaml:"type"`

	// SQLite configures SQLite-backed storage
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres configures PostgreSQL-backed storage
	Postgres PostgresConfig `yaml:"postgres"`

	// Bolt configures BoltDB-backed storage
	Bolt BoltConfig `yaml:"bolt"`
}

// SQLiteConfig configures a SQLite database file.
type SQLiteConfig struct {
	// Path is the database file path
	Path string `yaml:"path"`
}

// PostgresConfig configures a PostgreSQL connection.
type PostgresConfig struct {
	// DSN is the data source name (connection string)
	DSN string `yaml:"dsn"`
}

// BoltConfig configures a BoltDB database file.
type BoltConfig struct {
	// Path is the database file path
	Path string `yaml:"path"`
}

// LongTermConfig configures the semantic memory store.
type LongTermConfig struct {
	// Type specifies the backend ("chromem", "pgvector", "mock")
	Type string `yaml:"type"`

	// Chromem configures the embedded chromem-go vector store
	Chromem ChromemConfig `yaml:"chromem"`

	// PgVector configures PostgreSQL pgvector storage
	PgVector PgVectorConfig `yaml:"pgvector"`
}

// ChromemConfig configures the embedded chromem-go vector store.
type ChromemConfig struct {
	// Path is the on-disk persistence directory (in-memory when empty)
	Path string `yaml:"path"`

	// Collection is the collection name to use
	Collection string `yaml:"collection"`

	// Dimensions specifies the embedding dimensions
	Dimensions int `yaml:"dimensions"`

	// Compress enables gzip compression of persisted records
	Compress bool `yaml:"compress"`
}

// PgVectorConfig configures PostgreSQL with the pgvector extension.
type PgVectorConfig struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string `yaml:"connection_string"`

	// TableName is the name of the table to use
	TableName string `yaml:"table_name"`

	// Dimensions specifies the embedding dimensions
	Dimensions int `yaml:"dimensions"`

	// DistanceMetric is the distance metric to use (cosine, euclidean, dot)
	DistanceMetric string `yaml:"distance_metric"`
}

// SourceConfig configures the structured-data source record store.
type SourceConfig struct {
	// Type specifies the backend ("sqlite", "memory")
	Type string `yaml:"type"`

	// SQLite configures SQLite-backed document storage
	SQLite SQLiteConfig `yaml:"sqlite"`

	// SchemaDescription is a free-text description of the source records,
	// injected into the query translation prompt
	SchemaDescription string `yaml:"schema_description"`
}

// CompletionConfig configures the completion service.
type CompletionConfig struct {
	// Provider is the completion provider ("openai", "mock")
	Provider string `yaml:"provider"`

	// OpenAI configures OpenAI integration
	OpenAI OpenAIConfig `yaml:"openai"`

	// Timeout bounds each individual completion call
	Timeout time.Duration `yaml:"timeout"`
}

// OpenAIConfig configures OpenAI integration.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key
	APIKey string `yaml:"api_key"`

	// Model is the model to use for chat/completion
	Model string `yaml:"model"`

	// EmbeddingModel is the model to use for generating embeddings
	EmbeddingModel string `yaml:"embedding_model"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls randomness in generation (0.0-1.0)
	Temperature float64 `yaml:"temperature"`

	// BaseURL overrides the API base URL (for testing)
	BaseURL string `yaml:"base_url"`
}

// MemoryConfig configures the memory coordinator.
type MemoryConfig struct {
	// RecentLimit is how many recent messages a fetch returns
	RecentLimit int `yaml:"recent_limit"`

	// TopK is how many semantic matches a fetch returns
	TopK int `yaml:"top_k"`

	// DedupLookback is how many recent user messages the duplicate
	// suppression check inspects
	DedupLookback int `yaml:"dedup_lookback"`

	// StoreTimeout bounds each individual backing-store call
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// GuardrailConfig configures input validation and output sanitation.
type GuardrailConfig struct {
	// MaxInputChars is the maximum accepted input length
	MaxInputChars int `yaml:"max_input_chars"`

	// MaxOutputChars is the maximum emitted output length before truncation
	MaxOutputChars int `yaml:"max_output_chars"`
}

// ExecutorConfig configures the structured-data executor tiers.
type ExecutorConfig struct {
	// SummaryCap is the row cap for the fast tier that drives explanations
	SummaryCap int `yaml:"summary_cap"`

	// CompleteCap is the row cap for the full-data tier used for export
	CompleteCap int `yaml:"complete_cap"`

	// ContextWindow is how many recent messages the conversational executor sees
	ContextWindow int `yaml:"context_window"`
}

// ScriptingConfig configures the Lua policy-hook engine.
type ScriptingConfig struct {
	// Enabled determines whether policy hooks run at all
	Enabled bool `yaml:"enabled"`

	// Paths is a list of directories containing Lua scripts
	Paths []string `yaml:"paths"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level is the logging level ("debug", "info", "warn", "error")
	Level string `yaml:"level"`

	// Format is the output format ("text", "json")
	Format string `yaml:"format"`
}
