package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/innoscope/innoscope/errors"
	"github.com/innoscope/innoscope/logger"
)

// ScheduleOverride holds the operator-editable enrichment schedule fields.
// Nil fields are left untouched in the config file.
type ScheduleOverride struct {
	Provider          *string
	IntelligenceTypes []string
	GeographicFocus   []string
	IntervalMinutes   *int
	Enabled           *bool
}

// createBackup rotates backups (.back1, .back2, .back3) before modifying the config file
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete oldest config backup", logger.FieldFile, back3, logger.FieldError, err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, 0644); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// loadOrInitializeUserConfig reads the user config file into a generic map,
// creating an empty one when the file does not exist yet.
func loadOrInitializeUserConfig() (map[string]interface{}, string, error) {
	configPath := UserConfigPath()
	if configPath == "" {
		return nil, "", errors.New("could not determine home directory")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return nil, "", errors.Wrap(err, "failed to create .innoscope directory")
	}

	var cfg map[string]interface{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", errors.Wrap(err, "failed to parse user config")
		}
	} else {
		cfg = make(map[string]interface{})
	}

	return cfg, configPath, nil
}

// saveUserConfig writes the config map back to disk with a rotating backup
func saveUserConfig(cfg map[string]interface{}, configPath string) error {
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Mark this as our own write so the watcher does not reload it back
	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write user config")
	}

	return nil
}

// UpdateEnrichmentSchedule persists schedule fields to the user config file.
// Only non-nil fields are written; everything else in the file is preserved.
func UpdateEnrichmentSchedule(override ScheduleOverride) error {
	cfg, configPath, err := loadOrInitializeUserConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load user config")
	}

	var enrichment map[string]interface{}
	if e, ok := cfg["enrichment"].(map[string]interface{}); ok {
		enrichment = e
	} else {
		enrichment = make(map[string]interface{})
	}

	if override.Provider != nil {
		enrichment["provider"] = *override.Provider
	}
	if override.IntelligenceTypes != nil {
		enrichment["intelligence_types"] = override.IntelligenceTypes
	}
	if override.GeographicFocus != nil {
		enrichment["geographic_focus"] = override.GeographicFocus
	}
	if override.IntervalMinutes != nil {
		enrichment["interval_minutes"] = *override.IntervalMinutes
	}
	if override.Enabled != nil {
		enrichment["enabled"] = *override.Enabled
	}
	cfg["enrichment"] = enrichment

	return saveUserConfig(cfg, configPath)
}
