package config

import (
	"fmt"
)

var validProviders = map[string]bool{
	"fastembed": true,
	"openai":    true,
}

// Validate checks the configuration for values the engine cannot work with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}

	if !validProviders[c.Embedding.Provider] {
		return fmt.Errorf("unknown embedding provider %q (expected fastembed or openai)", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.OpenAIAPIKey == "" {
		return fmt.Errorf("openai embedding provider requires openai_api_key")
	}

	// A duplicate threshold above 1 is allowed: it disables the guard, since
	// no cosine similarity can exceed 1.
	if c.DuplicateThreshold < 0 {
		return fmt.Errorf("duplicate_threshold must not be negative, got %v", c.DuplicateThreshold)
	}
	if c.SearchThreshold < 0 || c.SearchThreshold > 1 {
		return fmt.Errorf("search_threshold must be within [0, 1], got %v", c.SearchThreshold)
	}

	if c.API.Enabled {
		if c.API.Port <= 0 || c.API.Port > 65535 {
			return fmt.Errorf("api port must be within 1-65535, got %d", c.API.Port)
		}
		if c.API.RateLimitPerMinute <= 0 {
			return fmt.Errorf("api rate_limit_per_minute must be positive, got %d", c.API.RateLimitPerMinute)
		}
	}

	if c.Maintenance.Enabled && c.Maintenance.Schedule == "" {
		return fmt.Errorf("maintenance schedule is required when maintenance is enabled")
	}

	return nil
}
