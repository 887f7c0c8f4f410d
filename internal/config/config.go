// Package config handles query engine configuration loading and management.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	if path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return homeDir
	}
	return path
}

// Config holds all query engine configuration.
type Config struct {
	DataDir   string `mapstructure:"data_dir"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	API       APIConfig       `mapstructure:"api"`
	Query     QueryConfig     `mapstructure:"query"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	AI        AIConfig        `mapstructure:"ai"`
}

// APIConfig holds HTTP server configuration.
type APIConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// QueryConfig holds the hybrid router's mode defaults and deadlines.
type QueryConfig struct {
	// DefaultMode names a mode: "auto", "fast", "balanced", "deep", or
	// "web_search". The router does not read it: a request that omits a
	// mode is routed by the complexity analyzer, like an AUTO request.
	DefaultMode string `mapstructure:"default_mode"`

	// EnableIntelligentRouting is loaded from configuration but not read
	// by the router: AUTO requests are always routed by the complexity
	// analyzer, whatever this value is.
	EnableIntelligentRouting bool `mapstructure:"enable_intelligent_routing"`

	SpeculativeDeadline time.Duration `mapstructure:"speculative_deadline"`
	AgenticDeadline     time.Duration `mapstructure:"agentic_deadline"`
	TopKDefault         int           `mapstructure:"top_k_default"`
	MaxAgenticSteps     int           `mapstructure:"max_agentic_steps"`
}

// CacheConfig holds C2 mode-aware cache tuning.
type CacheConfig struct {
	TTLSeconds                  int     `mapstructure:"ttl_seconds"`
	MaxEntries                  int     `mapstructure:"max_entries"`
	SemanticSimilarityThreshold float64 `mapstructure:"semantic_similarity_threshold"`
	SemanticNearThreshold       float64 `mapstructure:"semantic_near_threshold"`
}

// RateLimitConfig holds the router's admission-gate sliding window.
type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
}

// RetrievalConfig holds C3 fusion tuning.
type RetrievalConfig struct {
	VectorTopKMultiplier int  `mapstructure:"vector_top_k_multiplier"`
	LexicalEnabled       bool `mapstructure:"lexical_enabled"`
	RRFK                 int  `mapstructure:"rrf_k"`
}

// AIConfig holds model-provider configuration, shared by the
// embedding and LLM adapters.
type AIConfig struct {
	// Provider: "ollama" (default, local).
	Provider string `mapstructure:"provider"`

	ChatModel      string `mapstructure:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	Endpoint       string `mapstructure:"endpoint"`

	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".queryengine")

	return &Config{
		DataDir:   dataDir,
		LogLevel:  "info",
		LogFormat: "json",

		API: APIConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},

		Query: QueryConfig{
			DefaultMode:              "auto",
			EnableIntelligentRouting: true,
			SpeculativeDeadline:      3 * time.Second,
			AgenticDeadline:          30 * time.Second,
			TopKDefault:              10,
			MaxAgenticSteps:          15,
		},

		Cache: CacheConfig{
			TTLSeconds:                  3600,
			MaxEntries:                  1000,
			SemanticSimilarityThreshold: 0.95,
			SemanticNearThreshold:       0.85,
		},

		RateLimit: RateLimitConfig{
			PerMinute: 20,
		},

		Retrieval: RetrievalConfig{
			VectorTopKMultiplier: 2,
			LexicalEnabled:       true,
			RRFK:                 60,
		},

		AI: AIConfig{
			Provider:       "ollama",
			ChatModel:      "llama3.1",
			EmbeddingModel: "nomic-embed-text",
			Endpoint:       "http://localhost:11434",
			TimeoutSeconds: 120,
			MaxRetries:     2,
		},
	}
}

// Load loads configuration from files and environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("queryengine")
	v.SetConfigType("yaml")

	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".queryengine"))
	v.AddConfigPath("/etc/queryengine")
	v.AddConfigPath(".")

	v.SetEnvPrefix("QUERYENGINE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	cfg.DataDir = expandPath(cfg.DataDir)

	return cfg, nil
}

// ConfigPath returns the path to the YAML config file Load() reads,
// rooted at the default search directory (~/.queryengine).
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".queryengine", "queryengine.yaml")
}

// DatabasePath returns the path to the session-store SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "sessions.db")
}

// CacheDir returns the path to the on-disk cache-persistence directory.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// LexicalIndexPath returns the path to the FTS5 lexical index database.
func (c *Config) LexicalIndexPath() string {
	return filepath.Join(c.DataDir, "lexical.db")
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.CacheDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	return nil
}
