package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the archiver.
type Config struct {
	// Instance settings
	Instance InstanceConfig `yaml:"instance" json:"instance"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Credential cache settings
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InstanceConfig holds Mastodon instance settings.
type InstanceConfig struct {
	Domain         string `yaml:"domain" json:"domain"`
	AccountProfile string `yaml:"account_profile" json:"account_profile"`
}

// RateLimitConfig holds request pacing configuration.
type RateLimitConfig struct {
	// RequestsPerSecond caps outbound request frequency; zero disables pacing.
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// OutputConfig holds output destination configuration.
type OutputConfig struct {
	File         string `yaml:"file" json:"file"`
	Zip          bool   `yaml:"zip" json:"zip"`
	MediaDir     string `yaml:"media_dir" json:"media_dir"`
	OptimizeJSON bool   `yaml:"optimize_json" json:"optimize_json"`
	PageLimit    int    `yaml:"page_limit" json:"page_limit"`
}

// CacheConfig holds credential cache configuration.
type CacheConfig struct {
	Directory      string `yaml:"directory" json:"directory"`
	KeyringEnabled bool   `yaml:"keyring_enabled" json:"keyring_enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 0,
			RequestTimeout:    10 * time.Second,
		},
		Output: OutputConfig{
			PageLimit: 40,
		},
		Cache: CacheConfig{
			Directory:      defaultCacheDir(),
			KeyringEnabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultCacheDir returns the per-user cache directory for tootsync.
func defaultCacheDir() string {
	if dir := os.Getenv("TOOTSYNC_CACHE_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return ".tootsync-cache"
	}
	return filepath.Join(base, "tootsync")
}

// Load builds the effective configuration: defaults, then config file, then
// environment, then command line flags.
func Load(path string, flags map[string]interface{}) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	cfg.MergeFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the standard locations; a missing file is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// findConfigFile searches for a config file in standard locations.
func (c *Config) findConfigFile() string {
	locations := []string{
		".tootsync.yaml",
		".tootsync.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "tootsync", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "tootsync", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".tootsync.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// LoadFromEnv loads configuration from environment variables. A .env file in
// the working directory is loaded first if present.
func (c *Config) LoadFromEnv() error {
	_ = godotenv.Load()

	if domain := os.Getenv("TOOTSYNC_DOMAIN"); domain != "" {
		c.Instance.Domain = domain
	}
	if profile := os.Getenv("TOOTSYNC_ACCOUNT_PROFILE"); profile != "" {
		c.Instance.AccountProfile = profile
	}
	if rps := os.Getenv("TOOTSYNC_REQUESTS_PER_SECOND"); rps != "" {
		val, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("invalid TOOTSYNC_REQUESTS_PER_SECOND: %w", err)
		}
		c.RateLimit.RequestsPerSecond = val
	}
	if dir := os.Getenv("TOOTSYNC_CACHE_DIR"); dir != "" {
		c.Cache.Directory = dir
	}
	if dir := os.Getenv("TOOTSYNC_MEDIA_DIR"); dir != "" {
		c.Output.MediaDir = dir
	}
	if level := os.Getenv("TOOTSYNC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	return nil
}

// MergeFlags merges command line flag values into the configuration.
func (c *Config) MergeFlags(flags map[string]interface{}) {
	if flags == nil {
		return
	}
	if v, ok := flags["account-profile"].(string); ok && v != "" {
		c.Instance.AccountProfile = v
	}
	if v, ok := flags["rate-limit"].(float64); ok && v > 0 {
		c.RateLimit.RequestsPerSecond = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.File = v
	}
	if v, ok := flags["zip"].(bool); ok {
		c.Output.Zip = v
	}
	if v, ok := flags["media-output"].(string); ok && v != "" {
		c.Output.MediaDir = v
	}
	if v, ok := flags["optimize-json"].(bool); ok {
		c.Output.OptimizeJSON = v
	}
	if v, ok := flags["cache-dir"].(string); ok && v != "" {
		c.Cache.Directory = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second cannot be negative"))
	}
	if c.RateLimit.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.Output.PageLimit <= 0 || c.Output.PageLimit > 40 {
		errs = append(errs, errors.New("page limit must be between 1 and 40"))
	}
	if c.Cache.Directory == "" {
		errs = append(errs, errors.New("cache directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
