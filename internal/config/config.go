// Package config loads global process configuration using viper, the way the
// teacher's internal/config package does (see firestige-Otus's GlobalConfig /
// setDefaults / ValidateAndApplyDefaults).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// GlobalConfig is the top-level static configuration for the analyzer
// process. Every environment variable named in SPEC_FULL.md §6 maps onto a
// field here; the Metrics fields additionally read METRICS_ADDR and
// METRICS_PATH.
type GlobalConfig struct {
	Database DatabaseConfig `mapstructure:"database"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Backend  BackendConfig  `mapstructure:"backend"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	GeoIP    GeoIPConfig    `mapstructure:"geoip"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	LogLevel string         `mapstructure:"log_level"`
}

// MetricsConfig configures the Prometheus /metrics HTTP surface
// (internal/metrics), the one HTTP listener this repo serves.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// DatabaseConfig configures the document store connection (C7, §4.7).
type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

// CaptureConfig configures the live-interface capturer (C3, §4.3).
type CaptureConfig struct {
	Interface string `mapstructure:"interface"`
}

// QueueConfig configures the DynamicQueue / DoubleBufferQueue pair (C1/C2, §4.1-4.2).
type QueueConfig struct {
	MinSize      int     `mapstructure:"min_size"`
	MaxSize      int     `mapstructure:"max_size"`
	GrowthFactor float64 `mapstructure:"growth_factor"`
	ShrinkFactor float64 `mapstructure:"shrink_factor"`
}

// ConsumerConfig configures the worker pool (C6, §4.6).
type ConsumerConfig struct {
	MaxWorkers     int `mapstructure:"max_workers"`
	StartBatchSize int `mapstructure:"start_batch_size"`
}

// BackendConfig and JWTConfig belong to the excluded HTTP/auth surface
// (SPEC_FULL.md §6); this repo loads them so the config contract is
// complete, but Validate does not check them and nothing acts on them.
type BackendConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type JWTConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	Algorithm     string `mapstructure:"algorithm"`
	ExpireMinutes int    `mapstructure:"expire_minutes"`
}

// GeoIPConfig configures the geo-IP reader (internal/geoip). The database
// downloader itself is a Non-goal; this repo only opens an existing file.
type GeoIPConfig struct {
	MaxmindLicenseKey string `mapstructure:"maxmind_license_key"`
	DBAbsolutePath    string `mapstructure:"db_absolute_path"`
}

// Load reads configuration from path (if non-empty) and overlays environment
// variables, mirroring the teacher's config.Load (SetEnvKeyReplacer +
// AutomaticEnv + SetDefault + Unmarshal + validate).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnv(v)
	setDefaults(v)

	var cfg GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// bindEnv wires the flat environment variables named in SPEC_FULL.md §6 onto
// their nested mapstructure keys.
func bindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	binds := map[string]string{
		"database.uri":                "DATABASE_URI",
		"database.name":               "DATABASE_NAME",
		"capture.interface":           "CAPTURE_INTERFACE",
		"queue.min_size":              "MIN_QUEUE_SIZE",
		"queue.max_size":              "MAX_QUEUE_SIZE",
		"consumer.max_workers":        "MAX_WORKERS",
		"consumer.start_batch_size":   "START_BATCH_SIZE",
		"queue.growth_factor":         "GROWTH_FACTOR",
		"queue.shrink_factor":         "SHRINK_FACTOR",
		"backend.host":                "BACKEND_HOST",
		"backend.port":                "BACKEND_PORT",
		"jwt.secret_key":              "JWT_SECRET_KEY",
		"jwt.algorithm":               "JWT_ALGORITHM",
		"jwt.expire_minutes":          "JWT_EXPIRE_MINUTES",
		"geoip.maxmind_license_key":   "MAXMIND_LICENSE_KEY",
		"geoip.db_absolute_path":      "GEOIP_DB_ABSOLUTE_PATH",
		"metrics.addr":                "METRICS_ADDR",
		"metrics.path":                "METRICS_PATH",
		"log_level":                   "LOG_LEVEL",
	}
	for key, env := range binds {
		_ = v.BindEnv(key, env)
	}
	// BACKEND_CORS_ORIGINS is a comma list, handled separately after unmarshal
	// since viper doesn't split env strings automatically.
	_ = v.BindEnv("backend.cors_origins_raw", "BACKEND_CORS_ORIGINS")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.name", "netanalyzer")
	v.SetDefault("capture.interface", "eth0")
	v.SetDefault("queue.min_size", 256)
	v.SetDefault("queue.max_size", 8192)
	v.SetDefault("queue.growth_factor", 1.5)
	v.SetDefault("queue.shrink_factor", 0.5)
	v.SetDefault("consumer.max_workers", 4)
	v.SetDefault("consumer.start_batch_size", 256)
	v.SetDefault("backend.host", "0.0.0.0")
	v.SetDefault("backend.port", 8000)
	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.expire_minutes", 60)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("log_level", "info")

	if raw := v.GetString("backend.cors_origins_raw"); raw != "" {
		v.Set("backend.cors_origins", strings.Split(raw, ","))
	}
}

// Validate checks invariants that ValidateAndApplyDefaults enforces in the
// teacher's config package, adapted to this repo's fields.
func (cfg *GlobalConfig) Validate() error {
	if cfg.Database.URI == "" {
		return fmt.Errorf("database.uri (DATABASE_URI) is required")
	}
	if cfg.Queue.MinSize <= 0 || cfg.Queue.MaxSize <= 0 || cfg.Queue.MinSize >= cfg.Queue.MaxSize {
		return fmt.Errorf("invalid queue size bounds: min=%d max=%d", cfg.Queue.MinSize, cfg.Queue.MaxSize)
	}
	if cfg.Queue.GrowthFactor <= 1.0 {
		return fmt.Errorf("queue.growth_factor must be > 1.0, got %f", cfg.Queue.GrowthFactor)
	}
	if cfg.Queue.ShrinkFactor >= 1.0 || cfg.Queue.ShrinkFactor <= 0 {
		return fmt.Errorf("queue.shrink_factor must be in (0, 1.0), got %f", cfg.Queue.ShrinkFactor)
	}
	if cfg.Consumer.MaxWorkers < 1 {
		return fmt.Errorf("consumer.max_workers must be >= 1")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		return fmt.Errorf("invalid log_level: %s", cfg.LogLevel)
	}
	return nil
}
