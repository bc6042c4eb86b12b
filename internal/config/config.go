// Package config loads application configuration from the config file,
// environment and defaults, in that order of increasing precedence for
// environment over file.
//
// The config file lives at ~/.centavo/config.yaml and every key can be
// overridden with a CENTAVO_ environment variable, e.g.
// CENTAVO_SYNC_ENDPOINT or CENTAVO_DASHBOARD_PORT.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved application configuration.
type Config struct {
	// DataDir holds the database, logs and receipt inbox
	// (default: ~/.centavo).
	DataDir string `mapstructure:"data_dir"`

	// UserEmail identifies the local profile. Required for commands that
	// touch records.
	UserEmail string `mapstructure:"user_email"`

	// UserName is the display name used when the profile is first created.
	UserName string `mapstructure:"user_name"`

	Sync      SyncConfig      `mapstructure:"sync"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Log       LogConfig       `mapstructure:"log"`
}

// SyncConfig configures the sync engine and remote gateway.
type SyncConfig struct {
	// Endpoint is the remote backend base URL. Empty disables sync.
	Endpoint string `mapstructure:"endpoint"`

	// APIKey authenticates gateway calls.
	APIKey string `mapstructure:"api_key"`

	// Debounce is the quiet period after a mutation before a drain starts.
	Debounce time.Duration `mapstructure:"debounce"`

	// BatchSize caps entries per drain cycle.
	BatchSize int `mapstructure:"batch_size"`

	// CallTimeout bounds each remote call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`

	// ProbeURL is probed to detect connectivity.
	ProbeURL string `mapstructure:"probe_url"`

	// ProbeInterval is the connectivity probe period.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// DashboardConfig configures the status WebSocket server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// IngestConfig configures the receipt inbox watcher.
type IngestConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// InboxDir overrides the default <data_dir>/inbox.
	InboxDir string `mapstructure:"inbox_dir"`

	// DefaultCategory is assigned to scans without one.
	DefaultCategory string `mapstructure:"default_category"`
}

// LogConfig configures file logging.
type LogConfig struct {
	// File overrides the default <data_dir>/centavo.log.
	File string `mapstructure:"file"`

	// MaxSizeMB rotates the log when it exceeds this size.
	MaxSizeMB int `mapstructure:"max_size_mb"`

	// MaxBackups caps retained rotated files.
	MaxBackups int `mapstructure:"max_backups"`

	// MaxAgeDays drops rotated files older than this.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// DefaultDataDir returns ~/.centavo, falling back to the working
// directory when the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".centavo"
	}
	return filepath.Join(home, ".centavo")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("sync.debounce", 2*time.Second)
	v.SetDefault("sync.batch_size", 10)
	v.SetDefault("sync.call_timeout", 15*time.Second)
	v.SetDefault("sync.probe_url", "https://clients3.google.com/generate_204")
	v.SetDefault("sync.probe_interval", 5*time.Second)
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 8484)
	v.SetDefault("ingest.enabled", true)
	v.SetDefault("ingest.default_category", "Uncategorized")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)
}

// Load reads configuration from path (or the default location when path
// is empty), applies environment overrides and returns the resolved
// config. A missing config file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CENTAVO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultDataDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || os.IsNotExist(err)
		if path != "" || !missing {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if cfg.Ingest.InboxDir == "" {
		cfg.Ingest.InboxDir = filepath.Join(cfg.DataDir, "inbox")
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.DataDir, "centavo.log")
	}

	return &cfg, nil
}

// DBPath returns the database file location under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "centavo.db")
}
