package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from a byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	var config Config

	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvironmentOverrides(&config)

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied, suitable for
// running entirely on embedded stores and the mock completion provider.
func Default() *Config {
	config := &Config{}
	applyEnvironmentOverrides(config)
	if err := validateConfig(config); err != nil {
		// Defaults are always valid; a failure here is a programming error.
		panic(err)
	}
	return config
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func applyEnvironmentOverrides(config *Config) {
	// Short-term Postgres DSN override
	if dsn := os.Getenv("PROCAGENT_SHORTTERM_DSN"); dsn != "" {
		config.ShortTerm.Postgres.DSN = dsn
	}

	// Shared Postgres URL fallback for both Postgres-backed stores
	if url := os.Getenv("POSTGRES_URL"); url != "" {
		if config.ShortTerm.Postgres.DSN == "" {
			config.ShortTerm.Postgres.DSN = url
		}
		if config.LongTerm.PgVector.ConnectionString == "" {
			config.LongTerm.PgVector.ConnectionString = url
		}
	}

	// Chromem persistence path override
	if path := os.Getenv("PROCAGENT_CHROMEM_PATH"); path != "" {
		config.LongTerm.Chromem.Path = path
	}

	// OpenAI API key override
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Completion.OpenAI.APIKey = apiKey
	}

	// Log level override
	if level := os.Getenv("PROCAGENT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// validateConfig validates the configuration and applies defaults.
func validateConfig(config *Config) error {
	// Validate short-term store configuration
	switch strings.ToLower(config.ShortTerm.Type) {
	case "", "sqlite":
		config.ShortTerm.Type = "sqlite"
		if config.ShortTerm.SQLite.Path == "" {
			config.ShortTerm.SQLite.Path = "./data/procagent.db"
		}
	case "postgres":
		if config.ShortTerm.Postgres.DSN == "" {
			return fmt.Errorf("postgres DSN is required for postgres short-term store")
		}
	case "boltdb":
		if config.ShortTerm.Bolt.Path == "" {
			config.ShortTerm.Bolt.Path = "./data/procagent.bolt.db"
		}
	case "mock":
		// Mock store doesn't require additional validation
	default:
		return fmt.Errorf("unsupported short-term store type: %s", config.ShortTerm.Type)
	}

	// Validate long-term store configuration
	switch strings.ToLower(config.LongTerm.Type) {
	case "", "chromem":
		config.LongTerm.Type = "chromem"
		if config.LongTerm.Chromem.Collection == "" {
			config.LongTerm.Chromem.Collection = "conversations"
		}
		if config.LongTerm.Chromem.Dimensions <= 0 {
			config.LongTerm.Chromem.Dimensions = 384
		}
	case "pgvector":
		if config.LongTerm.PgVector.ConnectionString == "" {
			return fmt.Errorf("connection string is required for pgvector long-term store")
		}
		if config.LongTerm.PgVector.TableName == "" {
			config.LongTerm.PgVector.TableName = "semantic_memory"
		}
		if config.LongTerm.PgVector.Dimensions <= 0 {
			config.LongTerm.PgVector.Dimensions = 384
		}
		if config.LongTerm.PgVector.DistanceMetric == "" {
			config.LongTerm.PgVector.DistanceMetric = "cosine"
		} else {
			metric := strings.ToLower(config.LongTerm.PgVector.DistanceMetric)
			if metric != "cosine" && metric != "euclidean" && metric != "dot" {
				return fmt.Errorf("unsupported distance metric for pgvector: %s (must be cosine, euclidean, or dot)",
					config.LongTerm.PgVector.DistanceMetric)
			}
		}
	case "mock":
		// Mock store doesn't require additional validation
	default:
		return fmt.Errorf("unsupported long-term store type: %s", config.LongTerm.Type)
	}

	// Validate source store configuration
	switch strings.ToLower(config.Source.Type) {
	case "", "memory":
		config.Source.Type = "memory"
	case "sqlite":
		if config.Source.SQLite.Path == "" {
			config.Source.SQLite.Path = "./data/source_records.db"
		}
	default:
		return fmt.Errorf("unsupported source store type: %s", config.Source.Type)
	}

	// Validate completion configuration
	switch strings.ToLower(config.Completion.Provider) {
	case "", "mock":
		config.Completion.Provider = "mock"
	case "openai":
		// API key can arrive via environment variable, so it is not checked here
		if config.Completion.OpenAI.Model == "" {
			config.Completion.OpenAI.Model = "gpt-4o-mini"
		}
		if config.Completion.OpenAI.EmbeddingModel == "" {
			config.Completion.OpenAI.EmbeddingModel = "text-embedding-3-small"
		}
		if config.Completion.OpenAI.MaxTokens <= 0 {
			config.Completion.OpenAI.MaxTokens = 1024
		}
		if config.Completion.OpenAI.Temperature < 0 || config.Completion.OpenAI.Temperature > 1.0 {
			config.Completion.OpenAI.Temperature = 0.7
		}
	default:
		return fmt.Errorf("unsupported completion provider: %s", config.Completion.Provider)
	}
	if config.Completion.Timeout <= 0 {
		config.Completion.Timeout = 30 * time.Second
	}

	// Apply memory coordinator defaults
	if config.Memory.RecentLimit <= 0 {
		config.Memory.RecentLimit = 10
	}
	if config.Memory.TopK <= 0 {
		config.Memory.TopK = 3
	}
	if config.Memory.DedupLookback <= 0 {
		config.Memory.DedupLookback = 5
	}
	if config.Memory.StoreTimeout <= 0 {
		config.Memory.StoreTimeout = 5 * time.Second
	}

	// Apply guardrail defaults
	if config.Guardrail.MaxInputChars <= 0 {
		config.Guardrail.MaxInputChars = 5000
	}
	if config.Guardrail.MaxOutputChars <= 0 {
		config.Guardrail.MaxOutputChars = 10000
	}

	// Apply executor defaults
	if config.Executor.SummaryCap <= 0 {
		config.Executor.SummaryCap = 100
	}
	if config.Executor.CompleteCap <= 0 {
		config.Executor.CompleteCap = 10000
	}
	if config.Executor.CompleteCap < config.Executor.SummaryCap {
		return fmt.Errorf("complete cap (%d) must be at least the summary cap (%d)",
			config.Executor.CompleteCap, config.Executor.SummaryCap)
	}
	if config.Executor.ContextWindow <= 0 {
		config.Executor.ContextWindow = 5
	}

	return nil
}
