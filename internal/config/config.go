// Package config defines the immutable, process-wide configuration snapshot
// read by every other component. Loading precedence (CLI flags > env vars >
// config file > built-in defaults) and flag parsing itself live outside this
// package, which only owns the snapshot type, its YAML shape, env overrides,
// and validation — mirroring the teacher's aider.Config/LoadConfig/Validate
// shape, generalized from a single Aider agent to the full yocore surface.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// StorageMode selects which storage backend variant is active.
type StorageMode string

const (
	StorageDB        StorageMode = "db"
	StorageEphemeral StorageMode = "ephemeral"
)

// ParserName identifies a registered session parser.
type ParserName string

const (
	ParserClaudeCode ParserName = "claude_code"
	ParserOpenClaw   ParserName = "openclaw"
)

// WatchRoot is a single filesystem root to observe.
type WatchRoot struct {
	Path    string     `yaml:"path" json:"path"`
	Parser  ParserName `yaml:"parser" json:"parser"`
	Enabled bool       `yaml:"enabled" json:"enabled"`
}

// ServerConfig controls the HTTP+SSE surface and mDNS advertisement.
type ServerConfig struct {
	Port         int    `yaml:"port" json:"port"`
	Host         string `yaml:"host" json:"host"`
	APIKey       string `yaml:"api_key" json:"api_key"`
	MDNSEnabled  bool   `yaml:"mdns_enabled" json:"mdns_enabled"`
	InstanceName string `yaml:"instance_name" json:"instance_name"`
}

// EphemeralConfig bounds the in-memory backend.
type EphemeralConfig struct {
	MaxSessions           int `yaml:"max_sessions" json:"max_sessions"`
	MaxMessagesPerSession int `yaml:"max_messages_per_session" json:"max_messages_per_session"`
}

// AIConfig gates AI-subprocess features.
type AIConfig struct {
	Provider         string `yaml:"provider" json:"provider"`
	TitleGeneration  bool   `yaml:"title_generation" json:"title_generation"`
	MemoryExtraction bool   `yaml:"memory_extraction" json:"memory_extraction"`
	SkillsDiscovery  bool   `yaml:"skills_discovery" json:"skills_discovery"`
	MarkerDetection  bool   `yaml:"marker_detection" json:"marker_detection"`
	Concurrency      int    `yaml:"concurrency" json:"concurrency"`
}

// SweepConfig describes one scheduler task's cadence and batch sizing.
type SweepConfig struct {
	IntervalHours       int     `yaml:"interval_hours" json:"interval_hours"`
	BatchSize           int     `yaml:"batch_size" json:"batch_size"`
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty" json:"similarity_threshold,omitempty"`
}

// SchedulerConfig bundles the four periodic maintenance sweeps.
type SchedulerConfig struct {
	Ranking          SweepConfig `yaml:"ranking" json:"ranking"`
	DuplicateCleanup SweepConfig `yaml:"duplicate_cleanup" json:"duplicate_cleanup"`
	EmbeddingRefresh SweepConfig `yaml:"embedding_refresh" json:"embedding_refresh"`
	SkillCleanup     SweepConfig `yaml:"skill_cleanup" json:"skill_cleanup"`
}

// Config is the root, read-only configuration snapshot passed to every
// component at construction time.
type Config struct {
	Storage   StorageMode     `yaml:"storage" json:"storage"`
	DataDir   string          `yaml:"data_dir" json:"data_dir"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Watch     []WatchRoot     `yaml:"watch" json:"watch"`
	Ephemeral EphemeralConfig `yaml:"ephemeral" json:"ephemeral"`
	AI        AIConfig        `yaml:"ai" json:"ai"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
}

// Default returns the built-in defaults, the bottom of the precedence chain.
func Default() *Config {
	return &Config{
		Storage: StorageDB,
		DataDir: "data",
		Server: ServerConfig{
			Port:        8420,
			Host:        "127.0.0.1",
			MDNSEnabled: true,
		},
		Ephemeral: EphemeralConfig{
			MaxSessions:           100,
			MaxMessagesPerSession: 50,
		},
		AI: AIConfig{
			Concurrency: 3,
		},
		Scheduler: SchedulerConfig{
			Ranking:          SweepConfig{IntervalHours: 6, BatchSize: 500},
			DuplicateCleanup: SweepConfig{IntervalHours: 24, BatchSize: 500, SimilarityThreshold: 0.75},
			EmbeddingRefresh: SweepConfig{IntervalHours: 12, BatchSize: 100},
			SkillCleanup:     SweepConfig{IntervalHours: 24, BatchSize: 500, SimilarityThreshold: 0.80},
		},
	}
}

// Load reads a YAML config file, layers environment overrides on top, and
// validates the result — the same three-step shape as the teacher's
// aider.LoadConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	ApplyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv layers the documented environment overrides onto cfg in place.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("YOLOG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("YOLOG_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("YOLOG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("YOLOG_SERVER_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
}

// ReadOnly reports whether the YOLOG_CONFIG_READONLY override is set,
// forbidding any in-process config mutation beyond the initial snapshot.
func ReadOnly() bool {
	return os.Getenv("YOLOG_CONFIG_READONLY") != ""
}

// Validate checks that the snapshot is internally consistent, mirroring the
// teacher's Config.Validate.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage != StorageDB && c.Storage != StorageEphemeral {
		return fmt.Errorf("invalid storage mode: %q", c.Storage)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Ephemeral.MaxSessions <= 0 {
		return fmt.Errorf("ephemeral.max_sessions must be positive")
	}
	if c.Ephemeral.MaxMessagesPerSession <= 0 {
		return fmt.Errorf("ephemeral.max_messages_per_session must be positive")
	}
	for _, w := range c.Watch {
		if w.Parser != ParserClaudeCode && w.Parser != ParserOpenClaw {
			return fmt.Errorf("invalid parser for watch root %q: %q", w.Path, w.Parser)
		}
	}
	return nil
}
