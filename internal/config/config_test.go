package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

// resetViper clears all viper state between tests to avoid cross-contamination.
func resetViper() {
	viper.Reset()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Workspace", cfg.Workspace, "."},
		{"LogLevel", cfg.LogLevel, "info"},
		{"MaxUndo", cfg.MaxUndo, 1000},
		{"QueueDepth", cfg.QueueDepth, 64},
		{"MetricsAddr", cfg.MetricsAddr, ""},
		{"Verbose", cfg.Verbose, false},
		{"Journal.Dir", cfg.Journal.Dir, ""},
		{"Journal.Sync", cfg.Journal.Sync, false},
		{"Journal.CacheSize", cfg.Journal.CacheSize, 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
		field  func(Config) any
		want   any
	}{
		{
			name:   "workspace",
			envKey: "GEOSTORM_WORKSPACE",
			envVal: "/data/city",
			field:  func(c Config) any { return c.Workspace },
			want:   "/data/city",
		},
		{
			name:   "log_level",
			envKey: "GEOSTORM_LOG_LEVEL",
			envVal: "debug",
			field:  func(c Config) any { return c.LogLevel },
			want:   "debug",
		},
		{
			name:   "max_undo",
			envKey: "GEOSTORM_MAX_UNDO",
			envVal: "50",
			field:  func(c Config) any { return c.MaxUndo },
			want:   50,
		},
		{
			name:   "queue_depth",
			envKey: "GEOSTORM_QUEUE_DEPTH",
			envVal: "128",
			field:  func(c Config) any { return c.QueueDepth },
			want:   128,
		},
		{
			name:   "metrics_addr",
			envKey: "GEOSTORM_METRICS_ADDR",
			envVal: ":9090",
			field:  func(c Config) any { return c.MetricsAddr },
			want:   ":9090",
		},
		{
			name:   "verbose",
			envKey: "GEOSTORM_VERBOSE",
			envVal: "true",
			field:  func(c Config) any { return c.Verbose },
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper()
			// Set env prefix so GEOSTORM_* env vars map to config keys.
			viper.SetEnvPrefix("GEOSTORM")
			viper.AutomaticEnv()

			os.Setenv(tt.envKey, tt.envVal)
			defer os.Unsetenv(tt.envKey)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() returned unexpected error: %v", err)
			}
			got := tt.field(cfg)
			if got != tt.want {
				t.Errorf("%s: got %v (%T), want %v (%T)", tt.name, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		want    slog.Level
	}{
		{"debug", false, slog.LevelDebug},
		{"info", false, slog.LevelInfo},
		{"warn", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"", false, slog.LevelInfo},
		{"nonsense", false, slog.LevelInfo},
		{"error", true, slog.LevelDebug},
	}
	for _, tt := range tests {
		cfg := Config{LogLevel: tt.level, Verbose: tt.verbose}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q, verbose=%v) = %v, want %v", tt.level, tt.verbose, got, tt.want)
		}
	}
}

func TestJournalDir(t *testing.T) {
	tests := []struct {
		name      string
		workspace string
		dir       string
		want      string
	}{
		{"default under workspace", "/data/city", "", filepath.Join("/data/city", ".geostorm", "journal")},
		{"relative under workspace", "/data/city", "logs", filepath.Join("/data/city", "logs")},
		{"absolute wins", "/data/city", "/var/lib/geostorm", "/var/lib/geostorm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Workspace: tt.workspace, Journal: JournalConfig{Dir: tt.dir}}
			if got := cfg.JournalDir(); got != tt.want {
				t.Errorf("JournalDir() = %q, want %q", got, tt.want)
			}
		})
	}
}
