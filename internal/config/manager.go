package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperManager implements Manager using Viper.
type viperManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// NewManager creates a Manager reading from the given YAML file. The
// file is optional; defaults and environment variables (DOSSIER_*
// plus the provider-native key variables) always apply.
func NewManager(configPath string) Manager {
	return &viperManager{
		configPath: configPath,
		watchChan:  make(chan Config, 1),
	}
}

func (m *viperManager) Load(ctx context.Context) error {
	m.viper = viper.New()
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("DOSSIER")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if m.configPath != "" {
		if err := m.viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				// Missing file is fine, run on defaults and env.
			} else if os.IsNotExist(err) {
				// Same.
			} else {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	m.unmarshalConfig()
	m.applyEnvOverrides()
	return nil
}

func (m *viperManager) Get(ctx context.Context) *Config {
	return m.config
}

func (m *viperManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}

func (m *viperManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	m.unmarshalConfig()
	m.applyEnvOverrides()
	return nil
}

// Watch reloads on config file changes and delivers the new Config.
// Updates are dropped if the receiver lags.
func (m *viperManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		m.unmarshalConfig()
		m.applyEnvOverrides()
		select {
		case m.watchChan <- *m.config:
		default:
		}
	})
	return m.watchChan
}

func (m *viperManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("llm.groq_model", defaults.LLM.GroqModel)
	m.viper.SetDefault("llm.gemini_model", defaults.LLM.GeminiModel)

	m.viper.SetDefault("search.num_results", defaults.Search.NumResults)

	m.viper.SetDefault("engine.max_iterations", defaults.Engine.MaxIterations)
	m.viper.SetDefault("engine.enable_scrape", defaults.Engine.EnableScrape)

	m.viper.SetDefault("output.dir", defaults.Output.Dir)

	m.viper.SetDefault("server.host", defaults.Server.Host)
	m.viper.SetDefault("server.port", defaults.Server.Port)

	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.path", defaults.Logging.Path)
}

func (m *viperManager) unmarshalConfig() {
	cfg := &Config{}

	cfg.LLM.GroqAPIKey = m.viper.GetString("llm.groq_api_key")
	cfg.LLM.GroqModel = m.viper.GetString("llm.groq_model")
	cfg.LLM.GeminiAPIKey = m.viper.GetString("llm.gemini_api_key")
	cfg.LLM.GeminiModel = m.viper.GetString("llm.gemini_model")

	cfg.Search.SerperAPIKey = m.viper.GetString("search.serper_api_key")
	cfg.Search.NumResults = m.viper.GetInt("search.num_results")

	cfg.Engine.MaxIterations = m.viper.GetInt("engine.max_iterations")
	cfg.Engine.EnableScrape = m.viper.GetBool("engine.enable_scrape")

	cfg.Output.Dir = m.viper.GetString("output.dir")

	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.Port = m.viper.GetInt("server.port")

	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.Path = m.viper.GetString("logging.path")

	m.config = cfg
}

// applyEnvOverrides honors the provider-native key variables so users
// do not have to duplicate secrets under the DOSSIER prefix.
func (m *viperManager) applyEnvOverrides() {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		m.config.LLM.GroqAPIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		m.config.LLM.GeminiAPIKey = key
	}
	if key := os.Getenv("SERPER_API_KEY"); key != "" {
		m.config.Search.SerperAPIKey = key
	}
}
