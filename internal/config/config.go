package config

// Config represents the main mnemo configuration
type Config struct {
	// Data directory, defaults to ~/.mnemo
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Database file path, defaults to <data_dir>/memories.db
	DBPath string `json:"db_path" mapstructure:"db_path"`

	// Embedding provider configuration
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Minimum similarity for the duplicate guard to refuse a create
	DuplicateThreshold float64 `json:"duplicate_threshold" mapstructure:"duplicate_threshold"`

	// Default minimum similarity for search when the caller passes none
	SearchThreshold float64 `json:"search_threshold" mapstructure:"search_threshold"`

	// HTTP API configuration
	API APIConfig `json:"api" mapstructure:"api"`

	// Maintenance job configuration
	Maintenance MaintenanceConfig `json:"maintenance" mapstructure:"maintenance"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider       string `json:"provider" mapstructure:"provider"` // fastembed, openai
	Model          string `json:"model" mapstructure:"model"`
	Dimension      int    `json:"dimension" mapstructure:"dimension"`
	CacheDir       string `json:"cache_dir" mapstructure:"cache_dir"`
	BackgroundLoad bool   `json:"background_load" mapstructure:"background_load"`
	OpenAIAPIKey   string `json:"openai_api_key" mapstructure:"openai_api_key"`
}

// APIConfig holds HTTP API server configuration
type APIConfig struct {
	Enabled            bool   `json:"enabled" mapstructure:"enabled"`
	Host               string `json:"host" mapstructure:"host"`
	Port               int    `json:"port" mapstructure:"port"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// MaintenanceConfig holds the background maintenance job configuration
type MaintenanceConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Schedule string `json:"schedule" mapstructure:"schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:       "fastembed",
			Model:          "all-MiniLM-L6-v2",
			Dimension:      384,
			BackgroundLoad: true,
		},
		DuplicateThreshold: 0.7,
		SearchThreshold:    0.5,
		API: APIConfig{
			Enabled:            true,
			Host:               "127.0.0.1",
			Port:               6277,
			RateLimitPerMinute: 120,
		},
		Maintenance: MaintenanceConfig{
			Enabled:  true,
			Schedule: "@every 5m",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  false,
		},
	}
}
