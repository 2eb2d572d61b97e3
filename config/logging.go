package config

import (
	"fmt"
)

// LoggingConfig defines settings for run archive storage and rotation.
type LoggingConfig struct {
	// Enabled turns run archiving on.
	Enabled bool `json:"enabled"`
	// Backend selects the archive store type: "jsonl" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the archive store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the jsonl file exceeds this size in
	// megabytes. Zero disables rotation; ignored by the sqlite backend.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		c.Path = "dispatch_runs.log"
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	if c.Backend != "jsonl" && c.Backend != "sqlite" {
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}
