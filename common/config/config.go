// Package config provides configuration loading for the activity sync service and its CLI.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the activity sync service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Retention RetentionConfig `mapstructure:"retention"`
	Export    ExportConfig    `mapstructure:"export"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Charts    ChartsConfig    `mapstructure:"charts"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type           string         `mapstructure:"type"`
	MigrationsPath string         `mapstructure:"migrations_path"`
	Postgres       PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx connection URL from the settings.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis configuration for job locking
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UpstreamConfig holds the activity events API settings
type UpstreamConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuthConfig holds the OAuth2 client-credentials settings used to obtain bearer tokens
type AuthConfig struct {
	// TokenURL may contain a single %s which is replaced by the tenant id.
	TokenURL          string                      `mapstructure:"token_url"`
	Scope             string                      `mapstructure:"scope"`
	Timeout           time.Duration               `mapstructure:"timeout"`
	DefaultCredential string                      `mapstructure:"default_credential"`
	Credentials       map[string]CredentialConfig `mapstructure:"credentials"`
}

// CredentialConfig is one named service principal
type CredentialConfig struct {
	TenantID     string `mapstructure:"tenant_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// SyncConfig holds incremental sync settings
type SyncConfig struct {
	TaskName            string        `mapstructure:"task_name"`
	MaxPastDays         int           `mapstructure:"max_past_days"`
	BufferHours         int           `mapstructure:"buffer_hours"`
	Enabled             bool          `mapstructure:"enabled"`
	Interval            time.Duration `mapstructure:"interval"`
	TruncationIsFailure bool          `mapstructure:"truncation_is_failure"`
}

// RetentionConfig holds housekeeping settings
type RetentionConfig struct {
	EventDays   int           `mapstructure:"event_days"`
	ExportHours int           `mapstructure:"export_hours"`
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
}

// ExportConfig holds CSV export settings
type ExportConfig struct {
	Dir       string `mapstructure:"dir"`
	MaxFields int    `mapstructure:"max_fields"`
}

// JobsConfig holds job queue settings
type JobsConfig struct {
	Backend   string        `mapstructure:"backend"` // "local" (default) or "nats"
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

// ChartsConfig holds chart aggregation settings
type ChartsConfig struct {
	MaxPastDays int `mapstructure:"max_past_days"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/activity-sync")
	}

	// Environment variables override (ACTIVITY_SYNC_MAX_PAST_DAYS, etc.)
	v.SetEnvPrefix("ACTIVITY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Only fail if a specific config path was given
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate rejects settings the sync engine cannot run with.
func (c *Config) Validate() error {
	if c.Sync.MaxPastDays <= 0 {
		return fmt.Errorf("sync.max_past_days must be positive, got %d", c.Sync.MaxPastDays)
	}
	if c.Sync.BufferHours < 0 {
		return fmt.Errorf("sync.buffer_hours must not be negative, got %d", c.Sync.BufferHours)
	}
	if c.Sync.TaskName == "" {
		return errors.New("sync.task_name must not be empty")
	}
	if c.Charts.MaxPastDays <= 0 {
		return fmt.Errorf("charts.max_past_days must be positive, got %d", c.Charts.MaxPastDays)
	}
	switch c.Jobs.Backend {
	case "local", "nats":
	default:
		return fmt.Errorf("jobs.backend must be local or nats, got %q", c.Jobs.Backend)
	}
	return nil
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.migrations_path", "file://migrations")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "activity")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "activity_sync")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("upstream.url", "https://api.powerbi.com/v1.0/myorg/admin/activityevents")
	v.SetDefault("upstream.timeout", "60s")

	v.SetDefault("auth.token_url", "https://login.microsoftonline.com/%s/oauth2/v2.0/token")
	v.SetDefault("auth.scope", "https://analysis.windows.net/powerbi/api/.default")
	v.SetDefault("auth.timeout", "30s")
	v.SetDefault("auth.default_credential", "default")

	v.SetDefault("sync.task_name", "fetch_activity_events")
	v.SetDefault("sync.max_past_days", 30)
	v.SetDefault("sync.buffer_hours", 2)
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.interval", "1h")
	v.SetDefault("sync.truncation_is_failure", true)

	v.SetDefault("retention.event_days", 90)
	v.SetDefault("retention.export_hours", 24)
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.interval", "24h")

	v.SetDefault("export.dir", "/var/lib/activity-sync/exports")
	v.SetDefault("export.max_fields", 50)

	v.SetDefault("jobs.backend", "local")
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_size", 16)
	v.SetDefault("jobs.lock_ttl", "2h")

	v.SetDefault("charts.max_past_days", 7)
}
