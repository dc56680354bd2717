// Package config loads ragd's configuration, layering hardcoded defaults,
// an optional ragd.yaml file, and RAGD_* environment variables (highest
// precedence), mirroring the teacher's defaults → file → env → flags model.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is ragd's full runtime configuration, matching exactly the keys
// named in spec.md §6 plus the ambient dataDir/logsDir/queue-flush knobs.
type Config struct {
	OllamaURL string `yaml:"ollamaUrl" json:"ollamaUrl"`

	EmbeddingModel string `yaml:"embeddingModel" json:"embeddingModel"`
	ChatModel      string `yaml:"chatModel" json:"chatModel"`

	ChunkSize    int `yaml:"chunkSize" json:"chunkSize"`
	ChunkOverlap int `yaml:"chunkOverlap" json:"chunkOverlap"`

	TopK             int     `yaml:"topK" json:"topK"`
	MinScore         float64 `yaml:"minScore" json:"minScore"`
	MaxContextTokens int     `yaml:"maxContextTokens" json:"maxContextTokens"`

	DataDir string `yaml:"dataDir" json:"dataDir"`
	LogsDir string `yaml:"logsDir" json:"logsDir"`
	Port    int    `yaml:"port" json:"port"`

	// QueueFlushInterval is the coalescing window internal/cli/watch.go uses
	// for live re-ingestion: at most one job per watched collection per
	// interval. The ingestion queue does not read it; its progress-only
	// persistence throttle is the fixed queue.progressFlushInterval (2s).
	QueueFlushInterval time.Duration `yaml:"queueFlushInterval" json:"queueFlushInterval"`

	// WatchEnabled turns on the fsnotify-driven live re-ingestion watcher
	// for already-ingested directories. Off by default.
	WatchEnabled bool `yaml:"watchEnabled" json:"watchEnabled"`
}

// Default returns the hardcoded defaults from spec.md §6.
func Default() *Config {
	return &Config{
		OllamaURL:          "http://localhost:11434",
		EmbeddingModel:     "nomic-embed-text",
		ChatModel:          "llama3.1:8b",
		ChunkSize:          1000,
		ChunkOverlap:       200,
		TopK:               5,
		MinScore:           0.5,
		MaxContextTokens:   4000,
		DataDir:            "./data",
		LogsDir:            "./logs",
		Port:               3001,
		QueueFlushInterval: 2 * time.Second,
		WatchEnabled:       false,
	}
}

// Load builds the effective configuration for dir: defaults, then
// dir/ragd.yaml (if present), then RAGD_* environment overrides.
func Load(dir string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	path := filepath.Join(dir, "ragd.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.OllamaURL != "" {
		c.OllamaURL = other.OllamaURL
	}
	if other.EmbeddingModel != "" {
		c.EmbeddingModel = other.EmbeddingModel
	}
	if other.ChatModel != "" {
		c.ChatModel = other.ChatModel
	}
	if other.ChunkSize != 0 {
		c.ChunkSize = other.ChunkSize
	}
	if other.ChunkOverlap != 0 {
		c.ChunkOverlap = other.ChunkOverlap
	}
	if other.TopK != 0 {
		c.TopK = other.TopK
	}
	if other.MinScore != 0 {
		c.MinScore = other.MinScore
	}
	if other.MaxContextTokens != 0 {
		c.MaxContextTokens = other.MaxContextTokens
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if other.LogsDir != "" {
		c.LogsDir = other.LogsDir
	}
	if other.Port != 0 {
		c.Port = other.Port
	}
	if other.QueueFlushInterval != 0 {
		c.QueueFlushInterval = other.QueueFlushInterval
	}
	if other.WatchEnabled {
		c.WatchEnabled = other.WatchEnabled
	}
}

// applyEnvOverrides applies RAGD_* environment variable overrides, the
// highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGD_OLLAMA_URL"); v != "" {
		c.OllamaURL = v
	}
	if v := os.Getenv("RAGD_EMBEDDING_MODEL"); v != "" {
		c.EmbeddingModel = v
	}
	if v := os.Getenv("RAGD_CHAT_MODEL"); v != "" {
		c.ChatModel = v
	}
	if v := os.Getenv("RAGD_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ChunkSize = n
		}
	}
	if v := os.Getenv("RAGD_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ChunkOverlap = n
		}
	}
	if v := os.Getenv("RAGD_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TopK = n
		}
	}
	if v := os.Getenv("RAGD_MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MinScore = f
		}
	}
	if v := os.Getenv("RAGD_MAX_CONTEXT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxContextTokens = n
		}
	}
	if v := os.Getenv("RAGD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("RAGD_LOGS_DIR"); v != "" {
		c.LogsDir = v
	}
	if v := os.Getenv("RAGD_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("RAGD_QUEUE_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.QueueFlushInterval = d
		}
	}
	if v := os.Getenv("RAGD_WATCH_ENABLED"); v != "" {
		c.WatchEnabled = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate rejects configurations the rest of the system can't run on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		return fmt.Errorf("embeddingModel must not be empty")
	}
	if strings.TrimSpace(c.ChatModel) == "" {
		return fmt.Errorf("chatModel must not be empty")
	}
	if strings.TrimSpace(c.OllamaURL) == "" {
		return fmt.Errorf("ollamaUrl must not be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunkSize must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunkOverlap must be non-negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunkOverlap (%d) must be smaller than chunkSize (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("topK must be positive, got %d", c.TopK)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("minScore must be between 0 and 1, got %f", c.MinScore)
	}
	if c.MaxContextTokens <= 0 {
		return fmt.Errorf("maxContextTokens must be positive, got %d", c.MaxContextTokens)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.QueueFlushInterval <= 0 {
		return fmt.Errorf("queueFlushInterval must be positive, got %s", c.QueueFlushInterval)
	}
	return nil
}

// WriteYAML writes the configuration to path, for `ragd init`-style tooling.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
