package config

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present. API keys have no defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			GroqModel:   "llama-3.3-70b-versatile",
			GeminiModel: "gemini-2.0-flash",
		},
		Search: SearchConfig{
			NumResults: 10,
		},
		Engine: EngineConfig{
			MaxIterations: 10,
			EnableScrape:  false,
		},
		Output: OutputConfig{
			Dir: "output",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			SQLitePath: "data/dossier.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
