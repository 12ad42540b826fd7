// Package config loads lexisync settings with viper.
//
// Values come, in increasing priority, from built-in defaults, a TOML or YAML
// config file, LEXISYNC_* environment variables (dots become underscores,
// e.g. LEXISYNC_SYNC_WORKERS) and command-line flags bound by the CLI.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/lexiflow/lexisync/internal/sync"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "LEXISYNC"

// Config is the decoded configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Log     LogConfig     `mapstructure:"log"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Client  ClientConfig  `mapstructure:"client"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// DBConfig configures the SQLite store.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// SyncConfig configures the engine.
type SyncConfig struct {
	ConflictPolicy string `mapstructure:"conflict_policy"`
	Workers        int    `mapstructure:"workers"`

	// TableRoles overrides the role required per table. Keys are table
	// names in any case.
	TableRoles map[string]string `mapstructure:"table_roles"`
}

// LogConfig configures log output.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MonitorConfig configures the WebSocket activity stream.
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ClientConfig configures the pull/push CLI commands.
type ClientConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("db.path", "data/lexisync.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "lexiflow")
	v.SetDefault("sync.conflict_policy", string(sync.PolicyReject))
	v.SetDefault("sync.workers", 1)
	v.SetDefault("sync.table_roles", map[string]string{})
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("client.url", "http://localhost:8080")
	v.SetDefault("client.token", "")
}

// Load reads the config file into v and decodes the result.
//
// An explicit path must exist. Without one, lexisync.{toml,yaml,yml} is
// searched in the working directory and ~/.lexisync; finding none is fine.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lexisync")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.lexisync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return Decode(v)
}

// Decode unmarshals and validates the current settings of v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if _, err := sync.ParseConflictPolicy(c.Sync.ConflictPolicy); err != nil {
		return fmt.Errorf("sync.conflict_policy: %w", err)
	}
	if c.Sync.Workers < 0 {
		return fmt.Errorf("sync.workers cannot be negative (got %d)", c.Sync.Workers)
	}
	return nil
}

// Policy returns the parsed conflict policy. Validate has already checked it.
func (c *Config) Policy() sync.ConflictPolicy {
	p, _ := sync.ParseConflictPolicy(c.Sync.ConflictPolicy)
	return p
}

// Watch re-decodes the config whenever the file changes and passes the
// result to onChange. Invalid edits are logged and skipped.
func Watch(v *viper.Viper, logger *log.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Printf("Config file changed: %s (%s)", e.Name, e.Op)

		cfg, err := Decode(v)
		if err != nil {
			logger.Printf("WARNING: Ignoring invalid config change: %v", err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}
