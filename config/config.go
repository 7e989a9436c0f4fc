// Package config loads and persists innoscope configuration.
//
// Configuration is merged from, in increasing precedence:
// /etc/innoscope/config.toml, ~/.innoscope/config.toml, a project-local
// innoscope.toml found by walking up from the working directory, and
// INNOSCOPE_* environment variables.
package config

// Config represents the core innoscope configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Pipelines  PipelinesConfig  `mapstructure:"pipelines"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MonitorConfig configures the pipeline run registry
type MonitorConfig struct {
	StatusFilePath string `mapstructure:"status_file_path"` // JSON state file for run statuses

	// Resource thresholds above which system health reports degraded
	CPUThresholdPercent    float64 `mapstructure:"cpu_threshold_percent"`
	MemoryThresholdPercent float64 `mapstructure:"memory_threshold_percent"`

	// Consecutive degraded samples required before health flips.
	// 1 means a single over-threshold reading degrades immediately (no hysteresis).
	HealthDebounce int `mapstructure:"health_debounce"`
}

// EnrichmentConfig configures the enrichment scheduler
type EnrichmentConfig struct {
	Provider          string   `mapstructure:"provider"`           // e.g. "openrouter"
	IntelligenceTypes []string `mapstructure:"intelligence_types"` // enrichment categories
	GeographicFocus   []string `mapstructure:"geographic_focus"`
	IntervalMinutes   int      `mapstructure:"interval_minutes"` // time between scheduled runs
	Enabled           bool     `mapstructure:"enabled"`

	// How often the scheduler loop wakes to check whether a run is due
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
}

// PipelinesConfig configures the thin data-collection integrations
type PipelinesConfig struct {
	SerperAPIKey      string `mapstructure:"serper_api_key"`
	SerperQuery       string `mapstructure:"serper_query"`
	NewsFeedURL       string `mapstructure:"news_feed_url"`
	ArxivQuery        string `mapstructure:"arxiv_query"`
	ProviderBaseURL   string `mapstructure:"provider_base_url"`
	ProviderAPIKey    string `mapstructure:"provider_api_key"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"` // outbound rate limit per pipeline
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}
