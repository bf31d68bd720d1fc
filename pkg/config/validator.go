package config

import "fmt"

// Validator validates a loaded Config comprehensively with clear,
// field-scoped error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs fail-fast validation, stopping at the first
// error encountered.
func (v *Validator) ValidateAll() error {
	if err := v.validateDiscord(); err != nil {
		return err
	}
	if err := v.validateScraper(); err != nil {
		return err
	}
	if err := v.validateAI(); err != nil {
		return err
	}
	if err := v.validateDatabase(); err != nil {
		return err
	}
	if err := v.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateDiscord() error {
	if v.cfg.Discord.Token == "" {
		return NewValidationError("discord.token", fmt.Errorf("required"))
	}
	if v.cfg.Discord.GuildID == "" {
		return NewValidationError("discord.guildId", fmt.Errorf("required"))
	}
	return nil
}

func (v *Validator) validateScraper() error {
	s := v.cfg.Scraper
	if s.DelayBetweenRequests < 0 {
		return NewValidationError("scraper.delayBetweenRequests", fmt.Errorf("must be non-negative, got %d", s.DelayBetweenRequests))
	}
	if s.BackoffMultiplier < 1 {
		return NewValidationError("scraper.backoffMultiplier", fmt.Errorf("must be at least 1, got %v", s.BackoffMultiplier))
	}
	return nil
}

func (v *Validator) validateAI() error {
	a := v.cfg.AI
	if a.APIKey == "" {
		return NewValidationError("ai.apiKey", fmt.Errorf("required"))
	}
	if a.Model == "" {
		return NewValidationError("ai.model", fmt.Errorf("required"))
	}
	if a.BatchSize < 1 {
		return NewValidationError("ai.batchSize", fmt.Errorf("must be at least 1, got %d", a.BatchSize))
	}
	if a.MaxTokensPerBatch < 1 {
		return NewValidationError("ai.maxTokensPerBatch", fmt.Errorf("must be at least 1, got %d", a.MaxTokensPerBatch))
	}
	if a.MaxTokens < 1 {
		return NewValidationError("ai.maxTokens", fmt.Errorf("must be at least 1, got %d", a.MaxTokens))
	}
	if a.RetryAttempts < 0 {
		return NewValidationError("ai.retryAttempts", fmt.Errorf("must be non-negative, got %d", a.RetryAttempts))
	}
	if a.RetryDelayMs < 0 {
		return NewValidationError("ai.retryDelayMs", fmt.Errorf("must be non-negative, got %d", a.RetryDelayMs))
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	if v.cfg.Database.Path == "" {
		return NewValidationError("database.path", fmt.Errorf("required"))
	}
	return nil
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validLogFormats = map[string]bool{"json": true, "text": true}

func (v *Validator) validateLogging() error {
	l := v.cfg.Logging
	if !validLogLevels[l.Level] {
		return NewValidationError("logging.level", fmt.Errorf("must be one of debug|info|warn|error, got %q", l.Level))
	}
	if !validLogFormats[l.Format] {
		return NewValidationError("logging.format", fmt.Errorf("must be one of json|text, got %q", l.Format))
	}
	return nil
}
