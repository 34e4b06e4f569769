// Package config holds runtime configuration for the geostorm CLI.
// Values are populated from geostorm.yaml, GEOSTORM_* env vars, and
// CLI flags, in that order of increasing precedence.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/viper"
)

// JournalConfig holds configuration for the commit journal.
type JournalConfig struct {
	Dir       string `mapstructure:"dir"`
	Sync      bool   `mapstructure:"sync"`
	CacheSize int    `mapstructure:"cache_size"`
}

// Config holds all runtime configuration for a geostorm invocation.
type Config struct {
	Workspace   string        `mapstructure:"workspace"`
	LogLevel    string        `mapstructure:"log_level"`
	MaxUndo     int           `mapstructure:"max_undo"`
	QueueDepth  int           `mapstructure:"queue_depth"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	Verbose     bool          `mapstructure:"verbose"`
	Journal     JournalConfig `mapstructure:"journal"`
}

// Load reads configuration from viper, applying built-in defaults for
// any values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("workspace", ".")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("max_undo", 1000)
	viper.SetDefault("queue_depth", 64)
	viper.SetDefault("metrics_addr", "")
	viper.SetDefault("verbose", false)
	viper.SetDefault("journal.dir", "")
	viper.SetDefault("journal.sync", false)
	viper.SetDefault("journal.cache_size", 256)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps the configured log level name onto a slog level.
// Verbose forces debug. Unknown names fall back to info.
func (c Config) SlogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// JournalDir resolves the journal directory. An empty setting places
// the journal inside the workspace under .geostorm/journal; a relative
// setting is taken relative to the workspace.
func (c Config) JournalDir() string {
	dir := c.Journal.Dir
	if dir == "" {
		dir = filepath.Join(".geostorm", "journal")
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Workspace, dir)
}
