package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Discord.Token = "tok"
	cfg.Discord.GuildID = "g1"
	cfg.AI.APIKey = "key"
	return cfg
}

func TestValidateAll_PassesOnValidConfig(t *testing.T) {
	require.NoError(t, NewValidator(validConfig()).ValidateAll())
}

func TestValidateAll_RequiresDiscordToken(t *testing.T) {
	cfg := validConfig()
	cfg.Discord.Token = ""
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "discord.token", verr.Field)
}

func TestValidateAll_RequiresAIAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.AI.APIKey = ""
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ai.apiKey", verr.Field)
}

func TestValidateAll_RejectsInvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "logging.level", verr.Field)
}

func TestValidateAll_RejectsZeroBatchSize(t *testing.T) {
	cfg := validConfig()
	cfg.AI.BatchSize = 0
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ai.batchSize", verr.Field)
}

func TestValidateAll_RejectsSubOneBackoffMultiplier(t *testing.T) {
	cfg := validConfig()
	cfg.Scraper.BackoffMultiplier = 0.5
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "scraper.backoffMultiplier", verr.Field)
}
