package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "fastembed", cfg.Embedding.Provider)
	assert.Equal(t, "all-MiniLM-L6-v2", cfg.Embedding.Model)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.True(t, cfg.Embedding.BackgroundLoad)
	assert.Equal(t, 0.7, cfg.DuplicateThreshold)
	assert.Equal(t, 0.5, cfg.SearchThreshold)
	assert.Equal(t, 6277, cfg.API.Port)
	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.True(t, cfg.API.Enabled)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.DBPath = "/tmp/memories.db"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing db path",
			mutate:  func(c *Config) { c.DBPath = "" },
			wantErr: "db_path",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Embedding.Provider = "sorcery" },
			wantErr: "embedding provider",
		},
		{
			name:    "zero dimension",
			mutate:  func(c *Config) { c.Embedding.Dimension = 0 },
			wantErr: "dimension",
		},
		{
			name: "openai without key",
			mutate: func(c *Config) {
				c.Embedding.Provider = "openai"
				c.Embedding.OpenAIAPIKey = ""
			},
			wantErr: "openai_api_key",
		},
		{
			name:    "negative duplicate threshold",
			mutate:  func(c *Config) { c.DuplicateThreshold = -0.1 },
			wantErr: "duplicate_threshold",
		},
		{
			name:   "duplicate threshold above one disables the guard",
			mutate: func(c *Config) { c.DuplicateThreshold = 1.5 },
		},
		{
			name:    "search threshold above one",
			mutate:  func(c *Config) { c.SearchThreshold = 1.5 },
			wantErr: "search_threshold",
		},
		{
			name:    "bad api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "port",
		},
		{
			name: "api disabled skips port check",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
