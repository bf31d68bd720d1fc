package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
)

// Initialize loads, defaults, and validates configuration. This is the
// primary entry point for configuration loading.
//
// Steps performed:
//  1. Read the JSON config file at path
//  2. Expand ${VAR}/$VAR environment references in the raw bytes
//  3. Parse JSON into a Config
//  4. Merge over built-in defaults (file values override defaults)
//  5. Apply discrete environment-variable overrides (§6 env overrides)
//  6. Validate all configuration
//  7. Return a ready-to-use Config
func Initialize(_ context.Context, path string) (*Config, error) {
	log := slog.With("config_path", path)
	log.Info("loading configuration")

	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w: %w", ErrValidationFailed, err)
	}

	log.Info("configuration initialized",
		"guild_id", cfg.Discord.GuildID,
		"model", cfg.AI.Model,
		"database_path", cfg.Database.Path)

	return cfg, nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
	}
	fileCfg.configPath = path

	cfg := Defaults()
	if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration defaults: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides lets a small set of environment variables override
// the file-loaded config directly, for secrets that should never live
// in a checked-in config file (discord token, LLM API key) — spec.md
// §6 "A JSON config file plus environment overrides".
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("DISCORD_GUILD_ID"); v != "" {
		cfg.Discord.GuildID = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
