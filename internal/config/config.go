// Package config loads service configuration from an optional config.yaml
// and WEATHERROUTE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/weatherroute/weatherroute/internal/database"
	"github.com/weatherroute/weatherroute/internal/overlay"
)

// EnvPrefix prefixes every environment variable, e.g. WEATHERROUTE_SERVER_PORT.
const EnvPrefix = "WEATHERROUTE"

// Config holds all configuration for the application.
type Config struct {
	Env        string           `mapstructure:"env"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Database   database.Config  `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Conditions ConditionsConfig `mapstructure:"conditions"`
	Overlay    OverlayConfig    `mapstructure:"overlay"`
	Worker     WorkerConfig     `mapstructure:"worker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequireTLS      bool          `mapstructure:"require_tls"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// RedisConfig holds the shared conditions cache configuration. An empty
// Addr selects the in-memory cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ConditionsConfig holds the conditions backend and cache configuration.
type ConditionsConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Token           string        `mapstructure:"token"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      uint64        `mapstructure:"max_retries"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	StaleIfErrorTTL time.Duration `mapstructure:"stale_if_error_ttl"`
	CacheGridSize   float64       `mapstructure:"cache_grid_size"`
}

// OverlayConfig holds grouping, sampling and matching configuration.
type OverlayConfig struct {
	ThresholdMeters float64            `mapstructure:"threshold_meters"`
	Concurrency     int                `mapstructure:"concurrency"`
	FailurePolicy   string             `mapstructure:"failure_policy"` // isolate, all-or-nothing
	Tolerance       time.Duration      `mapstructure:"tolerance"`
	MatchMode       string             `mapstructure:"match_mode"` // absolute, legacy
	Timezone        string             `mapstructure:"timezone"`   // IANA zone or "auto"
	ColorScale      overlay.ColorScale `mapstructure:"color_scale"`
}

// WorkerConfig holds Pub/Sub prefetch configuration. The API publishes to
// TopicID when ProjectID is set; the worker consumes SubscriptionID.
type WorkerConfig struct {
	ProjectID      string        `mapstructure:"project_id"`
	TopicID        string        `mapstructure:"topic_id"`
	SubscriptionID string        `mapstructure:"subscription_id"`
	Workers        int           `mapstructure:"workers"`
	VesselTimeout  time.Duration `mapstructure:"vessel_timeout"`
	Lookback       time.Duration `mapstructure:"lookback"`
	HealthPort     int           `mapstructure:"health_port"`
}

// Load reads config.yaml from the given directories (or the working
// directory and ./config) and overlays environment variables.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.require_tls", false)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "weatherroute")
	v.SetDefault("database.password", "localdev")
	v.SetDefault("database.name", "weatherroute")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "weatherroute:conditions:")

	v.SetDefault("conditions.base_url", "http://localhost:8081")
	v.SetDefault("conditions.token", "")
	v.SetDefault("conditions.timeout", 10*time.Second)
	v.SetDefault("conditions.max_retries", 3)
	v.SetDefault("conditions.cache_ttl", 30*time.Minute)
	v.SetDefault("conditions.stale_if_error_ttl", 6*time.Hour)
	v.SetDefault("conditions.cache_grid_size", 0.01)

	scale := overlay.DefaultColorScale()
	v.SetDefault("overlay.threshold_meters", 100_000)
	v.SetDefault("overlay.concurrency", overlay.DefaultConcurrency)
	v.SetDefault("overlay.failure_policy", "isolate")
	v.SetDefault("overlay.tolerance", overlay.DefaultTolerance)
	v.SetDefault("overlay.match_mode", "absolute")
	v.SetDefault("overlay.timezone", "UTC")
	v.SetDefault("overlay.color_scale.metric", scale.Metric)
	v.SetDefault("overlay.color_scale.min", scale.Min)
	v.SetDefault("overlay.color_scale.max", scale.Max)
	v.SetDefault("overlay.color_scale.stops", scale.Stops)
	v.SetDefault("overlay.color_scale.missing_color", scale.MissingColor)

	v.SetDefault("worker.project_id", "")
	v.SetDefault("worker.topic_id", "weatherroute-prefetch")
	v.SetDefault("worker.subscription_id", "weatherroute-prefetch-worker")
	v.SetDefault("worker.workers", 4)
	v.SetDefault("worker.vessel_timeout", 30*time.Second)
	v.SetDefault("worker.lookback", 24*time.Hour)
	v.SetDefault("worker.health_port", 8082)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if _, err := overlay.ParseFailurePolicy(c.Overlay.FailurePolicy); err != nil {
		return fmt.Errorf("overlay.failure_policy: %w", err)
	}
	if _, err := overlay.ParseMatchMode(c.Overlay.MatchMode); err != nil {
		return fmt.Errorf("overlay.match_mode: %w", err)
	}
	if c.Overlay.Timezone != "auto" {
		if _, err := time.LoadLocation(c.Overlay.Timezone); err != nil {
			return fmt.Errorf("overlay.timezone: %w", err)
		}
	}
	if err := c.Overlay.ColorScale.Validate(); err != nil {
		return fmt.Errorf("overlay.color_scale: %w", err)
	}
	return nil
}

// ServerAddr returns the listen address in the format ":port".
func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// IsProduction reports whether Env is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// NewLogger creates the service logger.
func (c *Config) NewLogger(service, version string) zerolog.Logger {
	return newLogger(os.Stdout, c.Log, service, version)
}

func newLogger(w io.Writer, cfg LogConfig, service, version string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}
