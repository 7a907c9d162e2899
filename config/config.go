// Package config loads the assistant configuration from a YAML file with
// environment-variable overrides for secrets and deployment-specific
// values. The loaded Config is passed down explicitly; nothing in the
// repository reads ambient global state.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full assistant configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	LLM         LLMConfig         `yaml:"llm"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	History     HistoryConfig     `yaml:"history"`
	Session     SessionConfig     `yaml:"session"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// LLMConfig configures the inference collaborator. The API key is never
// read from the file; it comes from OPENAI_API_KEY.
type LLMConfig struct {
	APIKey          string  `yaml:"-"`
	BaseURL         string  `yaml:"base_url"`
	ClassifierModel string  `yaml:"classifier_model"`
	AnswerModel     string  `yaml:"answer_model"`
	Temperature     float32 `yaml:"temperature"`
}

// WorkflowConfig configures the workflow engine's retrieval phase.
type WorkflowConfig struct {
	// RetrievalTimeoutMS bounds each retrieval branch independently.
	RetrievalTimeoutMS int `yaml:"retrieval_timeout_ms"`
	// CombinedDeadlineMS optionally caps the whole retrieval phase.
	// Zero disables it.
	CombinedDeadlineMS int `yaml:"combined_deadline_ms"`
}

// RetrievalTimeout returns the per-branch timeout as a duration.
func (c WorkflowConfig) RetrievalTimeout() time.Duration {
	return time.Duration(c.RetrievalTimeoutMS) * time.Millisecond
}

// CombinedDeadline returns the combined deadline as a duration.
func (c WorkflowConfig) CombinedDeadline() time.Duration {
	return time.Duration(c.CombinedDeadlineMS) * time.Millisecond
}

// RetrievalConfig configures the retrieval branches.
type RetrievalConfig struct {
	// TopK is how many passages the context branch retrieves.
	TopK int `yaml:"top_k"`
	// MemoryTurns is how many recent turns the memory branch includes.
	MemoryTurns int `yaml:"memory_turns"`
}

// HistoryConfig selects and configures the conversation-history backend.
type HistoryConfig struct {
	// Backend is "postgres" or "sqlite".
	Backend string `yaml:"backend"`
	// DSN is the Postgres connection string; DATABASE_URL overrides it.
	DSN string `yaml:"dsn"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// SessionConfig configures the optional Redis session cache.
type SessionConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"-"`
	DB         int    `yaml:"db"`
	Prefix     string `yaml:"prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TTL returns the cache TTL as a duration.
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// VectorStoreConfig configures the knowledge-base vector store.
type VectorStoreConfig struct {
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
	Index  string `yaml:"index"`
	// EmbeddingModel is the model used to embed queries.
	EmbeddingModel string `yaml:"embedding_model"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error, none.
	Level string `yaml:"level"`
	// Backend is "default" or "golog".
	Backend string `yaml:"backend"`
}

// Default returns the configuration defaults applied before the file and
// environment are read.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
		},
		LLM: LLMConfig{
			ClassifierModel: "gpt-4o-mini",
			AnswerModel:     "gpt-4o",
			Temperature:     0.7,
		},
		Workflow: WorkflowConfig{
			RetrievalTimeoutMS: 10000,
		},
		Retrieval: RetrievalConfig{
			TopK:        5,
			MemoryTurns: 3,
		},
		History: HistoryConfig{
			Backend: "sqlite",
			Path:    "assistant.db",
		},
		Session: SessionConfig{
			Prefix:     "assistant:",
			TTLSeconds: 1800,
		},
		VectorStore: VectorStoreConfig{
			Scheme: "http",
			Host:   "localhost:8090",
			Index:  "Document",
		},
		Log: LogConfig{
			Level:   "info",
			Backend: "default",
		},
	}
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result. An empty path skips the file and uses defaults
// plus environment only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables. Secrets only
// come from here.
func applyEnv(cfg *Config) {
	cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.LLM.BaseURL = getEnv("OPENAI_BASE_URL", cfg.LLM.BaseURL)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.History.DSN = getEnv("DATABASE_URL", cfg.History.DSN)
	cfg.Session.Addr = getEnv("REDIS_ADDR", cfg.Session.Addr)
	cfg.Session.Password = os.Getenv("REDIS_PASSWORD")
	cfg.VectorStore.Host = getEnv("VECTOR_STORE_HOST", cfg.VectorStore.Host)
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}
	if c.LLM.ClassifierModel == "" {
		return fmt.Errorf("llm.classifier_model is required")
	}
	if c.LLM.AnswerModel == "" {
		return fmt.Errorf("llm.answer_model is required")
	}
	if c.Workflow.RetrievalTimeoutMS <= 0 {
		return fmt.Errorf("workflow.retrieval_timeout_ms must be positive")
	}
	if c.Workflow.CombinedDeadlineMS < 0 {
		return fmt.Errorf("workflow.combined_deadline_ms must not be negative")
	}

	switch c.History.Backend {
	case "postgres":
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn (or DATABASE_URL) is required for the postgres backend")
		}
	case "sqlite":
		if c.History.Path == "" {
			return fmt.Errorf("history.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}

	if c.Session.Enabled && c.Session.Addr == "" {
		return fmt.Errorf("session.addr (or REDIS_ADDR) is required when the session cache is enabled")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
