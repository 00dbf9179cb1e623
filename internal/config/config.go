// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/jonathan/career-fit/internal/logging"
)

// Config represents the CLI configuration that can be loaded from a JSON or TOML file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Storage
	DataDir     string `json:"data_dir,omitempty" toml:"data_dir"`         // Root of index files and the SQLite database
	DatabaseURL string `json:"database_url,omitempty" toml:"database_url"` // PostgreSQL URL or SQLite path; default <data_dir>/fit.db
	RedisURL    string `json:"redis_url,omitempty" toml:"redis_url"`       // Upload status store; in-memory when empty

	// Collaborators
	APIKey         string `json:"api_key,omitempty" toml:"api_key"`                 // Gemini API key
	Offline        bool   `json:"offline,omitempty" toml:"offline"`                 // Use the hashing embedder and keyword extractor
	EmbeddingModel string `json:"embedding_model,omitempty" toml:"embedding_model"` // Gemini embedding model
	ExtractModel   string `json:"extract_model,omitempty" toml:"extract_model"`     // Oracle model for evidence extraction
	MatchModel     string `json:"match_model,omitempty" toml:"match_model"`         // Oracle model for strict retries and cluster matching
	HashingDims    int    `json:"hashing_dims,omitempty" toml:"hashing_dims" validate:"gte=0"`

	// Chunking and retrieval
	ChunkSize    int     `json:"chunk_size,omitempty" toml:"chunk_size" validate:"gte=0"`
	ChunkOverlap int     `json:"chunk_overlap,omitempty" toml:"chunk_overlap" validate:"gte=0"`
	TopK         int     `json:"top_k,omitempty" toml:"top_k" validate:"gte=0"`
	MinRelevance float64 `json:"min_relevance,omitempty" toml:"min_relevance" validate:"gte=0,lte=1"`
	MatchMethod  string  `json:"match_method,omitempty" toml:"match_method" validate:"omitempty,oneof=coverage oracle"`

	// Workers and limits
	Workers                int     `json:"workers,omitempty" toml:"workers" validate:"gte=0"`
	MaxPending             int     `json:"max_pending,omitempty" toml:"max_pending" validate:"gte=0"`
	RunTimeoutSeconds      int     `json:"run_timeout_seconds,omitempty" toml:"run_timeout_seconds" validate:"gte=0"`
	EmbedTimeoutSeconds    int     `json:"embed_timeout_seconds,omitempty" toml:"embed_timeout_seconds" validate:"gte=0"`
	EmbedMaxAttempts       int     `json:"embed_max_attempts,omitempty" toml:"embed_max_attempts" validate:"gte=0"`
	EmbedRatePerSecond     float64 `json:"embed_rate_per_second,omitempty" toml:"embed_rate_per_second" validate:"gte=0"`
	ClassifyTimeoutSeconds int     `json:"classify_timeout_seconds,omitempty" toml:"classify_timeout_seconds" validate:"gte=0"`
	ClassifyBatchSize      int     `json:"classify_batch_size,omitempty" toml:"classify_batch_size" validate:"gte=0"`
	StatusTTLHours         int     `json:"status_ttl_hours,omitempty" toml:"status_ttl_hours" validate:"gte=0"`

	// Behavior
	Verbose bool           `json:"verbose,omitempty" toml:"verbose"` // Print detailed progress information
	Log     logging.Config `json:"log,omitempty" toml:"log"`
}

// Environment variables read by ApplyEnv
const (
	EnvAPIKey       = "GEMINI_API_KEY"
	EnvDatabaseURL  = "DATABASE_URL"
	EnvRedisURL     = "REDIS_URL"
	EnvDataDir      = "FIT_DATA_DIR"
	EnvChunkSize    = "CHUNK_SIZE"
	EnvChunkOverlap = "CHUNK_OVERLAP"
	EnvTopK         = "TOP_K"
	EnvLogLevel     = "LOG_LEVEL"
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DataDir:                DefaultDataDir(),
		EmbeddingModel:         "gemini-embedding-001",
		HashingDims:            256,
		ChunkSize:              800,
		ChunkOverlap:           120,
		TopK:                   8,
		MinRelevance:           0.1,
		MatchMethod:            "coverage",
		Workers:                2,
		MaxPending:             4,
		RunTimeoutSeconds:      600,
		EmbedTimeoutSeconds:    30,
		EmbedMaxAttempts:       3,
		EmbedRatePerSecond:     5,
		ClassifyTimeoutSeconds: 60,
		ClassifyBatchSize:      12,
		StatusTTLHours:         24,
		Log:                    logging.Config{Level: "warn", Format: "pretty"},
	}
}

// DefaultDataDir returns ~/.career-fit, or .career-fit when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".career-fit"
	}
	return filepath.Join(home, ".career-fit")
}

// LoadConfig loads configuration from a JSON or TOML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup. Pass os.LookupEnv
// outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config error: %s must be an integer: %w", key, err)
		}
		*dst = n
		return nil
	}

	str(EnvAPIKey, &c.APIKey)
	str(EnvDatabaseURL, &c.DatabaseURL)
	str(EnvRedisURL, &c.RedisURL)
	str(EnvDataDir, &c.DataDir)
	str(EnvLogLevel, &c.Log.Level)
	if err := num(EnvChunkSize, &c.ChunkSize); err != nil {
		return err
	}
	if err := num(EnvChunkOverlap, &c.ChunkOverlap); err != nil {
		return err
	}
	return num(EnvTopK, &c.TopK)
}

var validate = validator.New()

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.Log.Level != "" {
		switch c.Log.Level {
		case "trace", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("config error: 'log.level' must be one of trace, debug, info, warn, error")
		}
	}

	// Cross-field checks apply once both values are known
	if c.ChunkSize > 0 && c.ChunkOverlap > 0 && c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("config error: 'chunk_overlap' (%d) must be smaller than 'chunk_size' (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.Offline && c.MatchMethod == "oracle" {
		return fmt.Errorf("config error: 'match_method' oracle requires an API key and cannot be used offline")
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	str := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	num := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}
	flt := func(dst *float64, def float64) {
		if *dst == 0 {
			*dst = def
		}
	}

	str(&result.DataDir, defaults.DataDir)
	str(&result.DatabaseURL, defaults.DatabaseURL)
	str(&result.RedisURL, defaults.RedisURL)
	str(&result.APIKey, defaults.APIKey)
	str(&result.EmbeddingModel, defaults.EmbeddingModel)
	str(&result.ExtractModel, defaults.ExtractModel)
	str(&result.MatchModel, defaults.MatchModel)
	str(&result.MatchMethod, defaults.MatchMethod)
	str(&result.Log.Level, defaults.Log.Level)
	str(&result.Log.Format, defaults.Log.Format)
	str(&result.Log.TimeFormat, defaults.Log.TimeFormat)

	num(&result.HashingDims, defaults.HashingDims)
	num(&result.ChunkSize, defaults.ChunkSize)
	num(&result.ChunkOverlap, defaults.ChunkOverlap)
	num(&result.TopK, defaults.TopK)
	num(&result.Workers, defaults.Workers)
	num(&result.MaxPending, defaults.MaxPending)
	num(&result.RunTimeoutSeconds, defaults.RunTimeoutSeconds)
	num(&result.EmbedTimeoutSeconds, defaults.EmbedTimeoutSeconds)
	num(&result.EmbedMaxAttempts, defaults.EmbedMaxAttempts)
	num(&result.ClassifyTimeoutSeconds, defaults.ClassifyTimeoutSeconds)
	num(&result.ClassifyBatchSize, defaults.ClassifyBatchSize)
	num(&result.StatusTTLHours, defaults.StatusTTLHours)

	flt(&result.MinRelevance, defaults.MinRelevance)
	flt(&result.EmbedRatePerSecond, defaults.EmbedRatePerSecond)

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// StoreURL returns the database location: DatabaseURL, or a SQLite file in DataDir.
func (c *Config) StoreURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.DataDir, "fit.db")
}

// IndexDir returns the directory holding vector index generations.
func (c *Config) IndexDir() string {
	return filepath.Join(c.DataDir, "index")
}

// UseOracle reports whether the Gemini collaborators should be used.
func (c *Config) UseOracle() bool {
	return !c.Offline && c.APIKey != ""
}
