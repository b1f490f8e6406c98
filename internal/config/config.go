// Package config provides configuration types, defaults, and persistence
// for quill.
package config

import (
	"fmt"
	"time"

	"github.com/quillhq/quill/internal/invoke"
)

// MarkerConfig bounds marker scanning and rendering.
type MarkerConfig struct {
	// ScanWindow is how many lines around the anchor are searched for the
	// marker's opening line.
	ScanWindow int `mapstructure:"scan_window"`
	// MaxBlockLines is the safety valve on the forward block scan.
	MaxBlockLines int `mapstructure:"max_block_lines"`
	// Separator is rendered between the original text and the response.
	Separator string `mapstructure:"separator"`
}

// Config holds all configuration options for quill.
type Config struct {
	// Binary is the external AI CLI tool to invoke.
	Binary string `mapstructure:"binary"`
	// Model is passed through to the tool when set.
	Model string `mapstructure:"model"`
	// WorkDir is the working directory new sessions run in.
	WorkDir string `mapstructure:"work_dir"`
	// SkipPermissions passes the tool's permission bypass flag.
	SkipPermissions bool `mapstructure:"skip_permissions"`
	// ExtraArgs are appended verbatim to the tool's argument list.
	ExtraArgs []string `mapstructure:"extra_args"`

	// TimeoutSeconds is the per-invocation deadline.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// AutoTimeout arms the deadline timer. When false no timer is armed
	// and the caller offers manual abort instead.
	AutoTimeout bool `mapstructure:"auto_timeout"`

	// QueueMax caps the number of queued requests.
	QueueMax int `mapstructure:"queue_max"`
	// OrphanRetentionHours bounds how long orphaned results are kept.
	OrphanRetentionHours int `mapstructure:"orphan_retention_hours"`

	Marker MarkerConfig `mapstructure:"marker"`

	// Debug enables file logging.
	Debug bool `mapstructure:"debug"`
	// LogPath is where debug logs are written.
	LogPath string `mapstructure:"log_path"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Binary:               invoke.DefaultBinary,
		TimeoutSeconds:       120,
		AutoTimeout:          true,
		QueueMax:             32,
		OrphanRetentionHours: 24,
		Marker: MarkerConfig{
			ScanWindow:    100,
			MaxBlockLines: 500,
			Separator:     "---",
		},
		LogPath: "quill-debug.log",
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("binary must not be empty")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.QueueMax <= 0 {
		return fmt.Errorf("queue_max must be positive, got %d", c.QueueMax)
	}
	if c.OrphanRetentionHours <= 0 {
		return fmt.Errorf("orphan_retention_hours must be positive, got %d", c.OrphanRetentionHours)
	}
	return nil
}

// Timeout returns the per-invocation deadline as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OrphanRetention returns the orphan retention bound as a duration.
func (c Config) OrphanRetention() time.Duration {
	return time.Duration(c.OrphanRetentionHours) * time.Hour
}

// Invoke builds the base invocation config sessions inherit.
func (c Config) Invoke() invoke.Config {
	return invoke.Config{
		Binary:          c.Binary,
		Model:           c.Model,
		WorkDir:         c.WorkDir,
		SkipPermissions: c.SkipPermissions,
		ExtraArgs:       c.ExtraArgs,
		Timeout:         c.Timeout(),
		AutoTimeout:     c.AutoTimeout,
	}
}
