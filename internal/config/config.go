// ABOUTME: Configuration loading and parsing for strand
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strandchat/strand/internal/chat"
	"github.com/strandchat/strand/internal/provider"
)

// Config represents the complete strand configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Provider ProviderConfig `yaml:"provider"`
	Chat     ChatConfig     `yaml:"chat"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ProviderConfig holds model provider configuration
type ProviderConfig struct {
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
}

// ChatConfig holds generation and windowing configuration
type ChatConfig struct {
	MaxPriorTurns     int           `yaml:"max_prior_turns"`
	SystemPrompt      string        `yaml:"system_prompt"`
	GenerationTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	GenerationTimeoutRaw string `yaml:"generation_timeout"`
}

// AuthConfig holds authentication configuration. An empty JWTSecret runs the
// server single-tenant: no bearer tokens, one implicit anonymous user.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: ":8080"},
		Database: DatabaseConfig{Path: "strand.db"},
		Provider: ProviderConfig{
			BaseURL:      provider.DefaultBaseURL,
			DefaultModel: provider.DefaultModel,
		},
		Chat: ChatConfig{
			MaxPriorTurns:     chat.DefaultMaxPriorTurns,
			GenerationTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Fields left unset fall back to the defaults from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	// Distinguish "unset" from "explicitly zero" for the timeout.
	cfg.Chat.GenerationTimeoutRaw = "30s"
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Chat.MaxPriorTurns < 0 {
		return fmt.Errorf("chat.max_prior_turns must not be negative")
	}
	if c.Chat.GenerationTimeout < 0 {
		return fmt.Errorf("chat.generation_timeout must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Chat.GenerationTimeoutRaw != "" {
		cfg.Chat.GenerationTimeout, err = time.ParseDuration(cfg.Chat.GenerationTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing generation_timeout %q: %w", cfg.Chat.GenerationTimeoutRaw, err)
		}
	}

	return nil
}
