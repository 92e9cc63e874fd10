// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// DefaultSearchFilter is applied when no filter is configured or given
// on the command line: today's agenda, incomplete only.
const DefaultSearchFilter = "status:incomplete AND (dueBefore:today OR due:today)"

// APIConfig holds the key pair and transport tuning for the service.
type APIConfig struct {
	Key        string `yaml:"key"`
	Secret     string `yaml:"secret"`
	Timeout    string `yaml:"timeout"`     // per-request timeout, e.g. "30s"
	MaxRetries int    `yaml:"max_retries"` // transport-level retries per call
	RestURL    string `yaml:"rest_url"`    // override for testing; empty = production
	AuthURL    string `yaml:"auth_url"`
}

// UIConfig holds interactive mode settings.
type UIConfig struct {
	UndoCapacity  int  `yaml:"undo_capacity"`  // bounded undo history (default 10)
	ShowCompleted bool `yaml:"show_completed"` // include completed tasks in task views
}

// AnalyticsConfig holds usage analytics settings.
type AnalyticsConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// Config represents the application configuration
type Config struct {
	API           APIConfig       `yaml:"api"`
	DefaultFilter string          `yaml:"default_filter"`
	OutputFormat  string          `yaml:"output_format"`
	UI            UIConfig        `yaml:"ui"`
	Analytics     AnalyticsConfig `yaml:"analytics"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Timeout:    "30s",
			MaxRetries: 3,
		},
		DefaultFilter: DefaultSearchFilter,
		OutputFormat:  "text",
		UI: UIConfig{
			UndoCapacity: 10,
		},
		Analytics: AnalyticsConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from the specified path, or the default XDG
// path if empty. If the config file doesn't exist, it creates one from
// the sample and returns defaults. RTM_API_KEY and RTM_API_SECRET
// override the file in either case.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		cfg.applyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path without
// creating defaults. A missing file yields a nil config, not an error.
func LoadFromPath(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DefaultFilter == "" {
		c.DefaultFilter = DefaultSearchFilter
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "text"
	}
	if c.API.Timeout == "" {
		c.API.Timeout = "30s"
	}
	if c.API.MaxRetries <= 0 {
		c.API.MaxRetries = 3
	}
	if c.UI.UndoCapacity <= 0 {
		c.UI.UndoCapacity = 10
	}
}

// applyEnv lets the environment override the stored key pair, which
// keeps secrets out of dotfile repos.
func (c *Config) applyEnv() {
	if key := os.Getenv("RTM_API_KEY"); key != "" {
		c.API.Key = key
	}
	if secret := os.Getenv("RTM_API_SECRET"); secret != "" {
		c.API.Secret = secret
	}
}

// save writes the annotated sample config to the specified path
func (c *Config) save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The embedded sample carries the documentation comments.
	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OutputFormat != "text" && c.OutputFormat != "json" {
		return fmt.Errorf("invalid output_format: %q (must be 'text' or 'json')", c.OutputFormat)
	}

	if c.API.Timeout != "" {
		if _, err := time.ParseDuration(c.API.Timeout); err != nil {
			return fmt.Errorf("invalid duration for api.timeout: %q", c.API.Timeout)
		}
	}

	if c.UI.UndoCapacity < 0 {
		return fmt.Errorf("ui.undo_capacity must not be negative, got %d", c.UI.UndoCapacity)
	}

	return nil
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(filter, outputFormat string) {
	if filter != "" {
		c.DefaultFilter = filter
	}
	if outputFormat != "" {
		c.OutputFormat = outputFormat
	}
}

// HasAPIKey reports whether an API key pair is available.
func (c *Config) HasAPIKey() bool {
	return c.API.Key != "" && c.API.Secret != ""
}

// GetTimeout returns the per-request timeout. Returns 30 seconds if not
// configured or if parsing fails.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetUndoCapacity returns the bounded undo history size.
func (c *Config) GetUndoCapacity() int {
	if c.UI.UndoCapacity <= 0 {
		return 10
	}
	return c.UI.UndoCapacity
}

// IsAnalyticsEnabled returns true if analytics is enabled in config
func (c *Config) IsAnalyticsEnabled() bool {
	return c.Analytics.Enabled
}

// GetAnalyticsRetentionDays returns the analytics retention period in days.
// Returns 365 (default) if not configured.
func (c *Config) GetAnalyticsRetentionDays() int {
	if c.Analytics.RetentionDays <= 0 {
		return 365
	}
	return c.Analytics.RetentionDays
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "rtmilk")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "rtmilk")
	}
	return filepath.Join(home, fallbackPath, "rtmilk")
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// GetCacheDir returns the cache directory following XDG spec
func GetCacheDir() string {
	return getXDGDir("XDG_CACHE_HOME", ".cache")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
