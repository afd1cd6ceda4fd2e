package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GROQ_API_KEY", "GEMINI_API_KEY", "SERPER_API_KEY"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearKeyEnv(t)

	m := NewManager("")
	require.NoError(t, m.Load(context.Background()))

	cfg := m.Get(context.Background())
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.GroqModel)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.GeminiModel)
	assert.Equal(t, 10, cfg.Engine.MaxIterations)
	assert.False(t, cfg.Engine.EnableScrape)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	clearKeyEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  groq_api_key: gsk-file
  groq_model: llama-3.1-8b-instant
search:
  serper_api_key: serper-file
engine:
  max_iterations: 5
  enable_scrape: true
logging:
  level: debug
  format: console
`), 0o644))

	m := NewManager(path)
	require.NoError(t, m.Load(context.Background()))

	cfg := m.Get(context.Background())
	assert.Equal(t, "gsk-file", cfg.LLM.GroqAPIKey)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.LLM.GroqModel)
	assert.Equal(t, 5, cfg.Engine.MaxIterations)
	assert.True(t, cfg.Engine.EnableScrape)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep defaults.
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestProviderEnvOverrides(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-env")
	t.Setenv("SERPER_API_KEY", "serper-env")

	m := NewManager("")
	require.NoError(t, m.Load(context.Background()))

	cfg := m.Get(context.Background())
	assert.Equal(t, "gsk-env", cfg.LLM.GroqAPIKey)
	assert.Equal(t, "serper-env", cfg.Search.SerperAPIKey)
}

func TestValidateMissingKeys(t *testing.T) {
	clearKeyEnv(t)

	m := NewManager("")
	require.NoError(t, m.Load(context.Background()))

	err := m.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inference provider key")
	assert.Contains(t, err.Error(), "serper_api_key")
}

func TestValidateRanges(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.GroqAPIKey = "k"
	cfg.Search.SerperAPIKey = "k"
	cfg.Engine.MaxIterations = 100
	cfg.Server.Port = 0
	cfg.Logging.Level = "verbose"

	errs := cfg.Validate()
	assert.Len(t, errs, 3)
}

func TestValidateComplete(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.GroqAPIKey = "gsk-x"
	cfg.Search.SerperAPIKey = "serper-x"

	assert.Empty(t, cfg.Validate())
}

func TestReloadPicksUpChanges(t *testing.T) {
	clearKeyEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_iterations: 3\n"), 0o644))

	m := NewManager(path)
	require.NoError(t, m.Load(context.Background()))
	assert.Equal(t, 3, m.Get(context.Background()).Engine.MaxIterations)

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_iterations: 7\n"), 0o644))
	require.NoError(t, m.Reload(context.Background()))
	assert.Equal(t, 7, m.Get(context.Background()).Engine.MaxIterations)
}
