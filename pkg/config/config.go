package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/ehrops/pkg/observability"
)

// Environment names recognised by EHROPS_ENV
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config holds all application configuration
type Config struct {
	// Environment gates development-only facilities such as role simulation
	Environment string

	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Invitations   InvitationConfig
	Maintenance   MaintenanceConfig
	Simulation    SimulationConfig
	Observability ObservabilityConfig
}

// ServerConfig holds the ops (health/metrics/admin) server configuration
type ServerConfig struct {
	Host            string
	HealthPort      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RedisConfig holds the optional Redis used for the cross-instance seed lock
type RedisConfig struct {
	URL         string
	Password    string
	DB          int
	MaxRetries  int
	PoolSize    int
	SeedLockTTL time.Duration
}

// InvitationConfig holds invitation lifecycle settings
type InvitationConfig struct {
	DefaultExpiryDays int
	ResendExtension   time.Duration
	AcceptBaseURL     string

	// Mail relay webhook; notifications are only logged when empty
	WebhookURL    string
	WebhookSecret string
	AsyncNotify   bool
}

// MaintenanceConfig holds scheduled job settings
type MaintenanceConfig struct {
	SweepSchedule string
	SeedOnStart   bool
}

// SimulationConfig holds role-simulation preview settings
type SimulationConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment:   strings.ToLower(getEnv("EHROPS_ENV", EnvDevelopment)),
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Invitations:   loadInvitationConfig(),
		Maintenance:   loadMaintenanceConfig(),
		Simulation:    loadSimulationConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the process runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("EHROPS_HOST", "0.0.0.0"),
		HealthPort:      getEnv("EHROPS_HEALTH_PORT", "9090"),
		ReadTimeout:     getEnvDuration("EHROPS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("EHROPS_WRITE_TIMEOUT", 15*time.Second),
		ShutdownTimeout: getEnvDuration("EHROPS_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("EHROPS_DATABASE_URL", ""),
		MaxConns:    getEnvInt("EHROPS_DATABASE_MAX_CONNS", 20),
		MinConns:    getEnvInt("EHROPS_DATABASE_MIN_CONNS", 2),
		Timeout:     getEnvDuration("EHROPS_DATABASE_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("EHROPS_DATABASE_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("EHROPS_DATABASE_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:         getEnv("EHROPS_REDIS_URL", ""),
		Password:    getEnv("EHROPS_REDIS_PASSWORD", ""),
		DB:          getEnvInt("EHROPS_REDIS_DB", 0),
		MaxRetries:  getEnvInt("EHROPS_REDIS_MAX_RETRIES", 3),
		PoolSize:    getEnvInt("EHROPS_REDIS_POOL_SIZE", 10),
		SeedLockTTL: getEnvDuration("EHROPS_SEED_LOCK_TTL", 30*time.Second),
	}
}

func loadInvitationConfig() InvitationConfig {
	return InvitationConfig{
		DefaultExpiryDays: getEnvInt("EHROPS_INVITATION_EXPIRY_DAYS", 7),
		ResendExtension:   getEnvDuration("EHROPS_INVITATION_RESEND_EXTENSION", 7*24*time.Hour),
		AcceptBaseURL:     getEnv("EHROPS_INVITATION_ACCEPT_URL", "http://localhost:3000/accept-invitation"),
		WebhookURL:        getEnv("EHROPS_MAIL_WEBHOOK_URL", ""),
		WebhookSecret:     getEnv("EHROPS_MAIL_WEBHOOK_SECRET", ""),
		AsyncNotify:       getEnvBool("EHROPS_MAIL_ASYNC", true),
	}
}

func loadMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		SweepSchedule: getEnv("EHROPS_SWEEP_SCHEDULE", "*/15 * * * *"),
		SeedOnStart:   getEnvBool("EHROPS_SEED_ON_START", true),
	}
}

func loadSimulationConfig() SimulationConfig {
	return SimulationConfig{
		CacheSize: getEnvInt("EHROPS_SIMULATION_CACHE_SIZE", 64),
		CacheTTL:  getEnvDuration("EHROPS_SIMULATION_CACHE_TTL", 30*time.Second),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           ParseLogLevel(getEnv("EHROPS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("EHROPS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("EHROPS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("EHROPS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("EHROPS_OTEL_SERVICE_NAME", "ehrops-access"),
		OTelServiceVersion: getEnv("EHROPS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("EHROPS_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction, "test":
	default:
		return fmt.Errorf("invalid environment: %s (must be development, staging, test, or production)", c.Environment)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min conns (%d) exceeds max conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}

	if c.Invitations.DefaultExpiryDays < 1 {
		return fmt.Errorf("invitation expiry must be at least one day")
	}
	if c.Invitations.ResendExtension <= 0 {
		return fmt.Errorf("invitation resend extension must be positive")
	}
	if c.Invitations.WebhookURL != "" && c.Invitations.WebhookSecret == "" {
		return fmt.Errorf("mail webhook secret is required when a webhook URL is set")
	}

	if _, err := cron.ParseStandard(c.Maintenance.SweepSchedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", c.Maintenance.SweepSchedule, err)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// OTel returns the OpenTelemetry settings in the form InitOTel expects
func (c *Config) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
	}
}

// ParseLogLevel parses a log level string
func ParseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
