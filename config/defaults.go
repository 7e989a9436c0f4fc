package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultDirPermissions for the ~/.innoscope directory
const DefaultDirPermissions = 0750

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".innoscope")

	// Database defaults
	v.SetDefault("database.path", filepath.Join(dataDir, "innoscope.db"))

	// Monitor defaults
	v.SetDefault("monitor.status_file_path", filepath.Join(dataDir, "pipeline_status.json"))
	v.SetDefault("monitor.cpu_threshold_percent", 90.0)
	v.SetDefault("monitor.memory_threshold_percent", 90.0)
	v.SetDefault("monitor.health_debounce", 1) // no hysteresis

	// Enrichment scheduler defaults
	v.SetDefault("enrichment.provider", "openrouter")
	v.SetDefault("enrichment.intelligence_types", []string{"product_launch", "research_breakthrough", "funding"})
	v.SetDefault("enrichment.geographic_focus", []string{"global"})
	v.SetDefault("enrichment.interval_minutes", 360) // 6 hours
	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.poll_interval_seconds", 60)

	// Pipeline integration defaults
	v.SetDefault("pipelines.serper_query", "AI innovation announcement")
	v.SetDefault("pipelines.arxiv_query", "cat:cs.AI")
	v.SetDefault("pipelines.provider_base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("pipelines.requests_per_minute", 10)
	v.SetDefault("pipelines.timeout_seconds", 60)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("pipelines.serper_api_key", "INNOSCOPE_SERPER_API_KEY")
	v.BindEnv("pipelines.provider_api_key", "INNOSCOPE_PROVIDER_API_KEY")
}
