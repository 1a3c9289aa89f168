// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	DB          DBConfig          `mapstructure:"db"`
	SearchAPI   SearchAPIConfig   `mapstructure:"searchapi"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// SearchAPIConfig configures the upstream analytics API client.
type SearchAPIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TokenURL       string `mapstructure:"token_url"`
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	RefreshToken   string `mapstructure:"refresh_token"`
	AccessToken    string `mapstructure:"access_token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SyncConfig governs ingestion pacing and pagination.
type SyncConfig struct {
	PageSize           int     `mapstructure:"page_size"`
	RequestsPerSecond  float64 `mapstructure:"requests_per_second"`
	HourlyLookbackDays int     `mapstructure:"hourly_lookback_days"`
	DefaultDays        int     `mapstructure:"default_days"`
}

// AggregationConfig controls housekeeping for derived daily rows.
type AggregationConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// SchedulerConfig wires cron entries for nightly work.
type SchedulerConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	AggregateSpec     string `mapstructure:"aggregate_spec"`
	CleanupSpec       string `mapstructure:"cleanup_spec"`
	AggregateDaysBack int    `mapstructure:"aggregate_days_back"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SEARCHSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	// Empty defaults register the keys so environment-only values survive
	// Unmarshal.
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("searchapi.base_url", "")
	v.SetDefault("searchapi.token_url", "")
	v.SetDefault("searchapi.client_id", "")
	v.SetDefault("searchapi.client_secret", "")
	v.SetDefault("searchapi.refresh_token", "")
	v.SetDefault("searchapi.access_token", "")
	v.SetDefault("searchapi.timeout_seconds", 30)
	v.SetDefault("sync.page_size", 1000)
	v.SetDefault("sync.requests_per_second", 1)
	v.SetDefault("sync.hourly_lookback_days", 10)
	v.SetDefault("sync.default_days", 7)
	v.SetDefault("aggregation.retention_days", 30)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.aggregate_spec", "30 2 * * *")
	v.SetDefault("scheduler.cleanup_spec", "0 4 * * 0")
	v.SetDefault("scheduler.aggregate_days_back", 1)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("sync.page_size must be > 0")
	}
	if c.Sync.RequestsPerSecond <= 0 {
		return fmt.Errorf("sync.requests_per_second must be > 0")
	}
	if c.Sync.HourlyLookbackDays <= 0 {
		return fmt.Errorf("sync.hourly_lookback_days must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// APITimeout converts the client timeout config to a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.SearchAPI.TimeoutSeconds) * time.Second
}

// ConnLifetime converts the pool lifetime config to a duration.
func (c Config) ConnLifetime() time.Duration {
	return time.Duration(c.DB.ConnLifetimeMin) * time.Minute
}

// Retention converts the progress retention config to a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Aggregation.RetentionDays) * 24 * time.Hour
}
