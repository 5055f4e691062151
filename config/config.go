// Package config loads fabflow settings from an optional YAML file, the
// environment (FABFLOW_ prefix, a .env file is read first) and command line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/smallnest/fabflow/log"
)

// EnvPrefix prefixes every environment variable, e.g. FABFLOW_SERVER_ADDR.
const EnvPrefix = "FABFLOW"

// EnvConfigFile names the environment variable holding the config file path.
const EnvConfigFile = "FABFLOW_CONFIG"

// Config is the complete fabflow configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Store    StoreConfig    `mapstructure:"store"`
	Session  SessionConfig  `mapstructure:"session"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	RAG      RAGConfig      `mapstructure:"rag"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type LLMConfig struct {
	Provider       string `mapstructure:"provider"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	Path     string         `mapstructure:"path"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

type SQLiteConfig struct {
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`
}

type SessionConfig struct {
	Lock    string        `mapstructure:"lock"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type WorkflowConfig struct {
	SummarizerFailure string `mapstructure:"summarizer_failure"`
	Seed              uint64 `mapstructure:"seed"`
}

type RAGConfig struct {
	Backend      string `mapstructure:"backend"`
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	Dimensions   int    `mapstructure:"dimensions"`
	K            int    `mapstructure:"k"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	Embedder     string `mapstructure:"embedder"`
}

var defaults = map[string]any{
	"server.addr":             ":2024",
	"server.cors_origins":     []string{"*"},
	"server.shutdown_timeout": 10 * time.Second,

	"log.level": "info",

	"llm.provider":        "openai",
	"llm.model":           "gpt-4o-mini",
	"llm.embedding_model": "text-embedding-3-small",

	"store.backend":        "memory",
	"store.path":           "./data/checkpoints",
	"store.redis.addr":     "localhost:6379",
	"store.redis.prefix":   "fabflow:",
	"store.redis.ttl":      24 * time.Hour,
	"store.postgres.table": "checkpoints",
	"store.sqlite.path":    "./data/fabflow.db",
	"store.sqlite.table":   "checkpoints",

	"session.lock":     "local",
	"session.lock_ttl": 30 * time.Second,

	"workflow.summarizer_failure": "propagate",

	"rag.backend":       "memory",
	"rag.table":         "ncs_documents",
	"rag.dimensions":    1536,
	"rag.k":             4,
	"rag.chunk_size":    1000,
	"rag.chunk_overlap": 200,
	"rag.embedder":      "langchain",
}

// Load reads the configuration. path may be empty, in which case
// FABFLOW_CONFIG is consulted and, failing that, only defaults and the
// environment apply.
func Load(path string) (*Config, error) {
	return LoadWithFlags(path, nil, nil)
}

// LoadWithFlags is Load with command line flags bound on top. bindings maps
// config keys to flag names; only flags the user set override other sources.
func LoadWithFlags(path string, flags *pflag.FlagSet, bindings map[string]string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only sees keys viper knows about
	for _, k := range []string{"llm.base_url", "store.redis.password", "store.postgres.dsn", "rag.dsn", "workflow.seed"} {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}
	if err := v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for key, name := range bindings {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown enum values and impossible sizes.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(key, val string, allowed ...string) {
		if !slices.Contains(allowed, strings.ToLower(val)) {
			errs = append(errs, fmt.Errorf("%s: unknown value %q, want one of %s", key, val, strings.Join(allowed, "|")))
		}
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	oneOf("llm.provider", c.LLM.Provider, "openai", "fake")
	oneOf("store.backend", c.Store.Backend, "memory", "file", "redis", "postgres", "sqlite")
	oneOf("session.lock", c.Session.Lock, "local", "redis")
	oneOf("workflow.summarizer_failure", c.Workflow.SummarizerFailure, "propagate", "fallback")
	oneOf("rag.backend", c.RAG.Backend, "memory", "pgvector")
	oneOf("rag.embedder", c.RAG.Embedder, "langchain", "openai")

	if c.Store.Backend == "postgres" && c.Store.Postgres.DSN == "" {
		errs = append(errs, errors.New("store.postgres.dsn is required for the postgres backend"))
	}
	if c.RAG.Backend == "pgvector" && c.RAG.DSN == "" {
		errs = append(errs, errors.New("rag.dsn is required for the pgvector backend"))
	}
	if c.Session.Lock == "redis" && c.Store.Redis.Addr == "" {
		errs = append(errs, errors.New("store.redis.addr is required for the redis lock"))
	}
	if c.RAG.K <= 0 {
		errs = append(errs, fmt.Errorf("rag.k must be positive, got %d", c.RAG.K))
	}
	if c.RAG.ChunkSize <= 0 || c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap %d must be within [0, chunk_size %d)", c.RAG.ChunkOverlap, c.RAG.ChunkSize))
	}
	if c.RAG.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("rag.dimensions must be positive, got %d", c.RAG.Dimensions))
	}
	return errors.Join(errs...)
}
