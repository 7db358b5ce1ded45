// Package config loads the service configuration from ARENA_* environment
// variables.
//
// Server:
//
//	ARENA_HOST="0.0.0.0"
//	ARENA_PORT="8080"
//	ARENA_HEALTH_PORT="9090"
//	ARENA_READ_TIMEOUT="15s"
//	ARENA_SHUTDOWN_TIMEOUT="30s"
//
// Storage:
//
//	ARENA_POSTGRES_URL="postgres://arena@localhost/arena"   # required
//	ARENA_POSTGRES_MAX_CONNS="20"
//	ARENA_REDIS_URL="redis://localhost:6379/0"               # optional
//
// Access control:
//
//	ARENA_JWT_SECRET="..."                 # required, at least 32 bytes
//	ARENA_JWT_ISSUER="arena"
//	ARENA_INVITATION_TTL="7d"              # Go durations or whole days
//	ARENA_PRINCIPAL_CACHE_TTL="0"          # 0 disables the principal cache
//	ARENA_PRINCIPAL_CACHE_SIZE="10000"
//	ARENA_PLATFORM_ADMIN_PERMISSION="platform.admin"
//	ARENA_SEED_FILE="/etc/arena/seed.yaml"
//
// Invitation delivery:
//
//	ARENA_INVITE_WEBHOOK_URL="https://mailer.internal/invitations"
//	ARENA_INVITE_WEBHOOK_SECRET="..."
//	ARENA_INVITE_ACCEPT_URL="https://arena.example/invitations/accept"
//
// Observability:
//
//	ARENA_LOG_LEVEL="info"  # debug, info, warn, error
//	ARENA_METRICS_ENABLED="true"
//	ARENA_OTEL_ENABLED="true"
//	ARENA_OTEL_ENDPOINT="otel-collector:4317"
//
// LoadConfig validates the result; a missing database URL or a short JWT
// secret is an error.
package config
