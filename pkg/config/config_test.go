package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/arena/pkg/observability"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setRequired(t *testing.T) {
	t.Setenv("ARENA_POSTGRES_URL", "postgres://arena@localhost/arena?sslmode=disable")
	t.Setenv("ARENA_JWT_SECRET", testSecret)
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, 5, cfg.Database.MinConns)
	assert.False(t, cfg.Redis.Enabled())

	assert.Equal(t, "arena", cfg.Auth.JWTIssuer)
	assert.Equal(t, 7*24*time.Hour, cfg.Access.InvitationTTL)
	assert.Zero(t, cfg.Access.PrincipalCacheTTL)
	assert.Equal(t, "platform.admin", cfg.Access.PlatformAdminPermission)

	assert.Empty(t, cfg.Notifications.WebhookURL)
	assert.Empty(t, cfg.SeedFile)

	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ARENA_PORT", "8000")
	t.Setenv("ARENA_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ARENA_INVITATION_TTL", "3d")
	t.Setenv("ARENA_PRINCIPAL_CACHE_TTL", "30s")
	t.Setenv("ARENA_PRINCIPAL_CACHE_SIZE", "500")
	t.Setenv("ARENA_PLATFORM_ADMIN_PERMISSION", "ops.superuser")
	t.Setenv("ARENA_INVITE_WEBHOOK_URL", "https://mailer.internal/invitations")
	t.Setenv("ARENA_INVITE_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("ARENA_INVITE_ACCEPT_URL", "https://arena.example/invitations/accept")
	t.Setenv("ARENA_SEED_FILE", "/etc/arena/seed.yaml")
	t.Setenv("ARENA_LOG_LEVEL", "debug")
	t.Setenv("ARENA_METRICS_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 72*time.Hour, cfg.Access.InvitationTTL)
	assert.Equal(t, 30*time.Second, cfg.Access.PrincipalCacheTTL)
	assert.Equal(t, 500, cfg.Access.PrincipalCacheSize)
	assert.Equal(t, "ops.superuser", cfg.Access.PlatformAdminPermission)
	assert.Equal(t, "hook-secret", cfg.Notifications.WebhookSecret)
	assert.Equal(t, "/etc/arena/seed.yaml", cfg.SeedFile)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.MetricsEnabled)
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
		Database: DatabaseConfig{URL: "postgres://localhost/arena", MaxConns: 10, MinConns: 2},
		Auth:     AuthConfig{JWTSecret: testSecret},
		Access:   AccessConfig{InvitationTTL: time.Hour},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"same ports", func(c *Config) { c.Server.HealthPort = "8080" }, "must be different"},
		{"missing database", func(c *Config) { c.Database.URL = "" }, "postgres URL is required"},
		{"min above max", func(c *Config) { c.Database.MinConns = 20 }, "exceeds max connections"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "JWT secret"},
		{"zero ttl", func(c *Config) { c.Access.InvitationTTL = 0 }, "invitation TTL"},
		{"cache without size", func(c *Config) {
			c.Access.PrincipalCacheTTL = time.Minute
			c.Access.PrincipalCacheSize = 0
		}, "cache size"},
		{"bad webhook", func(c *Config) { c.Notifications.WebhookURL = "ftp://mailer" }, "webhook URL"},
		{"bad accept url", func(c *Config) { c.Notifications.AcceptURL = "https://" }, "accept URL"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "arena"
		}, "OpenTelemetry endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	t.Setenv("ARENA_POSTGRES_URL", "postgres://localhost/arena")
	t.Setenv("ARENA_JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Minute},
		{"90s", 90 * time.Second},
		{"2d", 48 * time.Hour},
		{"xd", time.Minute},
		{"soon", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("ARENA_TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, getEnvDuration("ARENA_TEST_DURATION", time.Minute))
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("ARENA_TEST_BOOL", "1")
	t.Setenv("ARENA_TEST_INT", "42")
	t.Setenv("ARENA_TEST_BAD_INT", "forty-two")

	assert.True(t, getEnvBool("ARENA_TEST_BOOL", false))
	assert.True(t, getEnvBool("ARENA_TEST_UNSET_BOOL", true))
	assert.Equal(t, 42, getEnvInt("ARENA_TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("ARENA_TEST_BAD_INT", 7))
	assert.Equal(t, "fallback", getEnv("ARENA_TEST_UNSET", "fallback"))
}
