package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Redis configuration
	Redis RedisConfig `mapstructure:"redis"`

	// Scheduling engine configuration
	Scheduling SchedulingConfig `mapstructure:"scheduling"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	IdleTimeout     int    `mapstructure:"idle_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	TxTimeout       int    `mapstructure:"tx_timeout"`
	MigrateOnStart  bool   `mapstructure:"migrate_on_start"`
}

// TxTimeoutDuration returns the per-transaction timeout
func (d DatabaseConfig) TxTimeoutDuration() time.Duration {
	return time.Duration(d.TxTimeout) * time.Second
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	SlotTTL  int    `mapstructure:"slot_ttl"`
}

// Addr returns host:port for the Redis client
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SchedulingConfig holds the booking engine knobs
type SchedulingConfig struct {
	TimeZone             string `mapstructure:"time_zone"`
	MaxMedicines         int    `mapstructure:"max_medicines"`
	PatientIDAttempts    int    `mapstructure:"patient_id_attempts"`
	StoreRetryAttempts   int    `mapstructure:"store_retry_attempts"`
	StoreRetryBackoffMs  int    `mapstructure:"store_retry_backoff_ms"`
	RejectDuplicateSlots bool   `mapstructure:"reject_duplicate_slots"`
}

// Location resolves the configured time zone, used to decide what "today" is
func (s SchedulingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.TimeZone)
}

// RetryBackoff returns the base backoff between StoreBusy retries
func (s SchedulingConfig) RetryBackoff() time.Duration {
	return time.Duration(s.StoreRetryBackoffMs) * time.Millisecond
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// Load loads configuration from .env, config files and environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/hms")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8083)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("server.shutdown_timeout", 15)

	// Database defaults. Empty defaults let AutomaticEnv see the keys on Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "hms")
	v.SetDefault("database.user", "hms")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.tx_timeout", 5)
	v.SetDefault("database.migrate_on_start", true)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.slot_ttl", 60)

	// Scheduling defaults
	v.SetDefault("scheduling.time_zone", "UTC")
	v.SetDefault("scheduling.max_medicines", 5)
	v.SetDefault("scheduling.patient_id_attempts", 5)
	v.SetDefault("scheduling.store_retry_attempts", 3)
	v.SetDefault("scheduling.store_retry_backoff_ms", 50)
	v.SetDefault("scheduling.reject_duplicate_slots", false)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.health_path", "/health")

	// Logging defaults
	v.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with conventional environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	// lib/pq accepts postgres:// URLs as a DSN as-is
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		host, port, found := strings.Cut(redisAddr, ":")
		config.Redis.Host = host
		if found {
			if p, err := strconv.Atoi(port); err == nil {
				config.Redis.Port = p
			}
		}
		config.Redis.Enabled = true
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Database.URL == "" && config.Database.Password == "" {
		return fmt.Errorf("database password is required")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.TxTimeout <= 0 {
		return fmt.Errorf("database tx_timeout must be positive")
	}

	if config.Scheduling.MaxMedicines <= 0 {
		return fmt.Errorf("scheduling max_medicines must be positive")
	}

	if config.Scheduling.PatientIDAttempts <= 0 {
		return fmt.Errorf("scheduling patient_id_attempts must be positive")
	}

	if config.Scheduling.StoreRetryAttempts <= 0 {
		return fmt.Errorf("scheduling store_retry_attempts must be positive")
	}

	if _, err := config.Scheduling.Location(); err != nil {
		return fmt.Errorf("invalid scheduling time_zone %q: %w", config.Scheduling.TimeZone, err)
	}

	return nil
}
