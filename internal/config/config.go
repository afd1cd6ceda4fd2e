// Package config loads and validates runtime configuration from a
// YAML file, environment variables, and defaults, in that order of
// precedence (env highest).
package config

import (
	"context"
	"fmt"
)

// Config is the full runtime configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Search   SearchConfig   `mapstructure:"search"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Output   OutputConfig   `mapstructure:"output"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// LLMConfig holds inference provider settings. The fast model handles
// extraction work, the complex model judgment work; each provider
// backs up the other.
type LLMConfig struct {
	GroqAPIKey   string `mapstructure:"groq_api_key"`
	GroqModel    string `mapstructure:"groq_model"`
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`
}

// SearchConfig holds web search settings.
type SearchConfig struct {
	SerperAPIKey string `mapstructure:"serper_api_key"`
	NumResults   int    `mapstructure:"num_results"`
}

// EngineConfig holds workflow settings.
type EngineConfig struct {
	MaxIterations int  `mapstructure:"max_iterations"`
	EnableScrape  bool `mapstructure:"enable_scrape"`
}

// OutputConfig holds report and trail locations.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// ServerConfig holds serve-mode settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds the investigation archive settings.
type DatabaseConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig holds application logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// Validate checks the configuration for completeness and sane values.
func (c *Config) Validate() []error {
	var errs []error

	if c.LLM.GroqAPIKey == "" && c.LLM.GeminiAPIKey == "" {
		errs = append(errs, fmt.Errorf("at least one inference provider key is required (llm.groq_api_key or llm.gemini_api_key)"))
	}
	if c.Search.SerperAPIKey == "" {
		errs = append(errs, fmt.Errorf("search.serper_api_key is required"))
	}
	if c.Search.NumResults < 1 || c.Search.NumResults > 100 {
		errs = append(errs, fmt.Errorf("search.num_results must be between 1 and 100, got %d", c.Search.NumResults))
	}
	if c.Engine.MaxIterations < 1 || c.Engine.MaxIterations > 50 {
		errs = append(errs, fmt.Errorf("engine.max_iterations must be between 1 and 50, got %d", c.Engine.MaxIterations))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	return errs
}

// Manager loads, validates, and watches configuration.
type Manager interface {
	Load(ctx context.Context) error
	Get(ctx context.Context) *Config
	Validate(ctx context.Context) error
	Reload(ctx context.Context) error
	Watch(ctx context.Context) <-chan Config
}
