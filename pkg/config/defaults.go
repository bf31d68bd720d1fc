package config

// Defaults returns a Config populated with the built-in defaults.
// load() merges the user-supplied file on top of this using mergo, so
// any field the user leaves zero-valued keeps its default.
func Defaults() *Config {
	return &Config{
		Scraper: ScraperConfig{
			DelayBetweenRequests: 500,
			BackoffMultiplier:    2.0,
		},
		AI: AIConfig{
			Model:             "gpt-4o-mini",
			BatchSize:         20,
			MaxTokensPerBatch: 4000,
			MaxTokens:         1000,
			RetryAttempts:     3,
			RetryDelayMs:      1000,
		},
		// AnonymizeInPrompts defaults false: mergo.WithOverride cannot
		// distinguish an explicit "false" in the file from an unset
		// field, so a true default could never be turned off.
		Privacy: PrivacyConfig{
			AnonymizeInPrompts: false,
		},
		Database: DatabaseConfig{
			Path: "./data/discord.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
