// Package config provides configuration types, defaults and loading for mdata.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/mdata/internal/log"
	"github.com/zjrosen/mdata/internal/tracing"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendHTTP   = "http"
)

// LocalConfigPath is checked before the user config directory.
const LocalConfigPath = ".mdata/config.yaml"

// Config holds all configuration options for mdata.
type Config struct {
	BaseURL     string         `mapstructure:"base_url"`
	KeyID       string         `mapstructure:"key_id"`
	Redraw      bool           `mapstructure:"redraw"`
	Placeholder string         `mapstructure:"placeholder"`
	Schema      string         `mapstructure:"schema"` // path to the entity schema file
	Store       StoreConfig    `mapstructure:"store"`
	Tracing     tracing.Config `mapstructure:"tracing"`
	Log         LogConfig      `mapstructure:"log"`
	Watch       WatchConfig    `mapstructure:"watch"`
}

// StoreConfig selects and tunes the persistence endpoint.
type StoreConfig struct {
	Backend  string            `mapstructure:"backend"`   // "memory", "sqlite" (default) or "http"
	Path     string            `mapstructure:"path"`      // SQLite file
	Endpoint string            `mapstructure:"endpoint"`  // HTTP base URL
	Timeout  time.Duration     `mapstructure:"timeout"`   // HTTP request timeout
	CacheTTL time.Duration     `mapstructure:"cache_ttl"` // 0 disables the read-through cache
	Headers  map[string]string `mapstructure:"headers"`
}

// LogConfig controls the debug log file.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// WatchConfig tunes the watch command.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	tr := tracing.DefaultConfig()
	tr.FilePath = DefaultTracesFilePath()
	return Config{
		KeyID:  "id",
		Schema: ".mdata/schema.yaml",
		Store: StoreConfig{
			Backend: BackendSQLite,
			Path:    ".mdata/store.db",
			Timeout: 30 * time.Second,
		},
		Tracing: tr,
		Log:     LogConfig{Level: "info"},
		Watch:   WatchConfig{Debounce: 100 * time.Millisecond},
	}
}

// DefaultTracesFilePath returns ~/.config/mdata/traces/traces.jsonl, or "" without a home directory.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mdata", "traces", "traces.jsonl")
}

// SetDefaults registers Defaults() on v so unset keys unmarshal to them.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("key_id", d.KeyID)
	v.SetDefault("redraw", d.Redraw)
	v.SetDefault("schema", d.Schema)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.timeout", d.Store.Timeout)
	v.SetDefault("store.cache_ttl", d.Store.CacheTTL)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
}

// Load reads configuration into v and returns it with the file actually used.
//
// Lookup order: explicit path, LocalConfigPath, ~/.config/mdata/config.yaml.
// A missing file is not an error; an unreadable or invalid one is.
// Environment variables prefixed MDATA_ override file values.
func Load(v *viper.Viper, path string) (Config, string, error) {
	SetDefaults(v)
	v.SetEnvPrefix("mdata")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case path != "":
		v.SetConfigFile(path)
	case fileExists(LocalConfigPath):
		v.SetConfigFile(LocalConfigPath)
	default:
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "mdata"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.ErrorErr(log.CatConfig, "Failed to read config", err, "path", path)
			return Config{}, "", fmt.Errorf("reading config: %w", err)
		}
		log.Debug(log.CatConfig, "No config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Validate checks the whole configuration.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.KeyID) == "" {
		return fmt.Errorf("key_id must not be empty")
	}
	if err := ValidateStore(cfg.Store); err != nil {
		return err
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateStore checks backend-specific requirements.
func ValidateStore(s StoreConfig) error {
	switch s.Backend {
	case BackendMemory:
	case BackendSQLite, "":
		if s.Path == "" {
			return fmt.Errorf("store.path is required when backend is %q", BackendSQLite)
		}
	case BackendHTTP:
		if s.Endpoint == "" {
			return fmt.Errorf("store.endpoint is required when backend is %q", BackendHTTP)
		}
	default:
		return fmt.Errorf("store.backend must be %q, %q or %q, got %q", BackendMemory, BackendSQLite, BackendHTTP, s.Backend)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("store.timeout must not be negative, got %v", s.Timeout)
	}
	if s.CacheTTL < 0 {
		return fmt.Errorf("store.cache_ttl must not be negative, got %v", s.CacheTTL)
	}
	return nil
}

// ValidateTracing checks tracing configuration. Path requirements apply only when enabled.
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}
	switch t.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
	}
	if t.Enabled && t.Exporter == "file" && t.FilePath == "" {
		return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# mdata configuration

# Prefix for every resource URL (HTTP backend) and identity field name
# base_url: https://api.example.com
key_id: id

# Redraw on every record write (otherwise opt in per type or collection)
redraw: false

# Value shown for placeheld fields while a record fetches
# placeholder: "..."

# Entity type declarations
schema: .mdata/schema.yaml

store:
  backend: sqlite          # memory, sqlite or http
  path: .mdata/store.db    # sqlite file
  # endpoint: http://localhost:8080
  # timeout: 30s
  # cache_ttl: 0s          # cache GET payloads; 0 disables
  # headers:
  #   Authorization: Bearer <token>

# log:
#   path: .mdata/debug.log
#   level: info            # debug, info, warn, error

# watch:
#   debounce: 100ms

# Tracing of store calls
# tracing:
#   enabled: false
#   exporter: file                 # none, file, stdout, otlp
#   file_path: ~/.config/mdata/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at configPath with default settings and comments.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
