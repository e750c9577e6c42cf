package config

import (
	"fmt"
)

// LoggingConfig defines settings for the task audit log store.
type LoggingConfig struct {
	// Path is the JSONL file the audit log is appended to.
	Path string `json:"path"`
	// Rotate enables size/age-based rotation of Path.
	Rotate bool `json:"rotate"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "dispatch_audit.jsonl"
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}
