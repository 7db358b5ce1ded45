package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/arena/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Database DatabaseConfig
	Redis    RedisConfig

	// Access control
	Auth          AuthConfig
	Access        AccessConfig
	Notifications NotificationConfig

	// SeedFile is an optional YAML permission catalog and role set
	SeedFile string

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis settings. Redis is optional; without it rate
// limits are kept per process.
type RedisConfig struct {
	URL      string
	PoolSize int
}

// Enabled reports whether a Redis URL was configured
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// AuthConfig holds bearer credential settings
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// AccessConfig holds authorization and invitation settings
type AccessConfig struct {
	InvitationTTL time.Duration
	// PrincipalCacheTTL of zero resolves principals from storage on every
	// request.
	PrincipalCacheTTL       time.Duration
	PrincipalCacheSize      int
	PlatformAdminPermission string
}

// NotificationConfig holds invitation delivery settings
type NotificationConfig struct {
	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration
	AcceptURL      string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// minJWTSecretLength is the HS256 key floor in bytes
const minJWTSecretLength = 32

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Access:        loadAccessConfig(),
		Notifications: loadNotificationConfig(),
		SeedFile:      getEnv("ARENA_SEED_FILE", ""),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ARENA_HOST", "0.0.0.0"),
		Port:            getEnv("ARENA_PORT", "8080"),
		ReadTimeout:     getEnvDuration("ARENA_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ARENA_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ARENA_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ARENA_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("ARENA_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("ARENA_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("ARENA_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("ARENA_POSTGRES_MIN_CONNS", 5),
		Timeout:     getEnvDuration("ARENA_POSTGRES_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("ARENA_POSTGRES_MAX_LIFETIME", 30*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("ARENA_REDIS_URL", ""),
		PoolSize: getEnvInt("ARENA_REDIS_POOL_SIZE", 10),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: getEnv("ARENA_JWT_SECRET", ""),
		JWTIssuer: getEnv("ARENA_JWT_ISSUER", "arena"),
	}
}

func loadAccessConfig() AccessConfig {
	return AccessConfig{
		InvitationTTL:           getEnvDuration("ARENA_INVITATION_TTL", 7*24*time.Hour),
		PrincipalCacheTTL:       getEnvDuration("ARENA_PRINCIPAL_CACHE_TTL", 0),
		PrincipalCacheSize:      getEnvInt("ARENA_PRINCIPAL_CACHE_SIZE", 10000),
		PlatformAdminPermission: getEnv("ARENA_PLATFORM_ADMIN_PERMISSION", "platform.admin"),
	}
}

func loadNotificationConfig() NotificationConfig {
	return NotificationConfig{
		WebhookURL:     getEnv("ARENA_INVITE_WEBHOOK_URL", ""),
		WebhookSecret:  getEnv("ARENA_INVITE_WEBHOOK_SECRET", ""),
		WebhookTimeout: getEnvDuration("ARENA_INVITE_WEBHOOK_TIMEOUT", 5*time.Second),
		AcceptURL:      getEnv("ARENA_INVITE_ACCEPT_URL", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("ARENA_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("ARENA_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("ARENA_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("ARENA_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("ARENA_OTEL_SERVICE_NAME", "arena-access"),
		OTelServiceVersion: getEnv("ARENA_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("ARENA_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("postgres max connections must be positive")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("postgres min connections (%d) exceeds max connections (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	if len(c.Auth.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT secret must be at least %d bytes", minJWTSecretLength)
	}

	if c.Access.InvitationTTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}
	if c.Access.PrincipalCacheTTL < 0 {
		return fmt.Errorf("principal cache TTL must not be negative")
	}
	if c.Access.PrincipalCacheTTL > 0 && c.Access.PrincipalCacheSize <= 0 {
		return fmt.Errorf("principal cache size must be positive when the cache is enabled")
	}

	if c.Notifications.WebhookURL != "" {
		if err := validateURL(c.Notifications.WebhookURL); err != nil {
			return fmt.Errorf("invalid invitation webhook URL: %w", err)
		}
	}
	if c.Notifications.AcceptURL != "" {
		if err := validateURL(c.Notifications.AcceptURL); err != nil {
			return fmt.Errorf("invalid invitation accept URL: %w", err)
		}
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

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
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

// getEnvDuration returns a duration environment variable or a default. A
// trailing "d" is read as days, so "7d" works alongside Go durations.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if days, ok := strings.CutSuffix(value, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour
		}
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
