package config

import "time"

// Config is the fully loaded, defaulted, and validated application
// configuration — spec.md §6.
type Config struct {
	Discord  DiscordConfig  `json:"discord"`
	Scraper  ScraperConfig  `json:"scraper"`
	AI       AIConfig       `json:"ai"`
	Privacy  PrivacyConfig  `json:"privacy"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`

	// configPath records where this Config was loaded from, for
	// diagnostic messages only.
	configPath string
}

// DiscordConfig holds credentials and the target guild.
type DiscordConfig struct {
	Token   string `json:"token"`
	GuildID string `json:"guildId"`
}

// ScraperConfig controls pacing and retry of the Discord scrape pass.
type ScraperConfig struct {
	DelayBetweenRequests int     `json:"delayBetweenRequests"` // milliseconds
	BackoffMultiplier    float64 `json:"backoffMultiplier"`
}

// StageToggle enables or disables an individual AI pipeline stage when
// running in "all stages" mode.
type StageToggle struct {
	Enabled bool `json:"enabled"`
}

// AIConfig holds LLM provider credentials and pipeline tuning knobs.
type AIConfig struct {
	APIKey            string                 `json:"apiKey"`
	Model             string                 `json:"model"`
	BatchSize         int                    `json:"batchSize"`
	MaxTokensPerBatch int                    `json:"maxTokensPerBatch"`
	MaxTokens         int                    `json:"maxTokens"`
	RetryAttempts     int                    `json:"retryAttempts"`
	RetryDelayMs      int                    `json:"retryDelayMs"`
	Stages            map[string]StageToggle `json:"stages,omitempty"`
}

// PrivacyConfig toggles privacy-affecting behavior.
type PrivacyConfig struct {
	AnonymizeInPrompts bool `json:"anonymizeInPrompts"`
}

// DatabaseConfig points at the persisted SQLite file.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// LoggingConfig controls observability output — consumed the way the
// teacher's cmd entrypoint wires slog: level + handler format.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug|info|warn|error
	Format string `json:"format"` // json|text
}

// StageEnabled reports whether the named AI stage should run in "all
// stages" mode. Defaults to true for any stage not explicitly listed.
func (c *Config) StageEnabled(name string) bool {
	if c.AI.Stages == nil {
		return true
	}
	toggle, ok := c.AI.Stages[name]
	if !ok {
		return true
	}
	return toggle.Enabled
}

// RetryDelay returns RetryDelayMs as a time.Duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.AI.RetryDelayMs) * time.Millisecond
}

// RequestDelay returns DelayBetweenRequests as a time.Duration.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.Scraper.DelayBetweenRequests) * time.Millisecond
}
