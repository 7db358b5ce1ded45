package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/arena/pkg/async"
	"github.com/platinummonkey/arena/pkg/observability"
)

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

func (c ConnectionConfig) withDefaults() ConnectionConfig {
	if c.MaxConns <= 0 {
		c.MaxConns = 20
	}
	if c.MinConns <= 0 || c.MinConns > c.MaxConns {
		c.MinConns = min(5, c.MaxConns)
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 30 * time.Minute
	}
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = 5 * time.Minute
	}
	return c
}

// ConnectionManager owns the PostgreSQL pool shared by every store
type ConnectionManager struct {
	db     *sql.DB
	config ConnectionConfig
}

// NewConnectionManager opens the pool and verifies it with a ping
func NewConnectionManager(ctx context.Context, config ConnectionConfig) (*ConnectionManager, error) {
	config = config.withDefaults()

	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConns)
	db.SetMaxIdleConns(config.MinConns)
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &ConnectionManager{db: db, config: config}, nil
}

// DB returns the pool
func (cm *ConnectionManager) DB() *sql.DB {
	return cm.db
}

// HealthCheck pings the database
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unhealthy: %w", err)
	}
	return nil
}

// Stats returns pool statistics
func (cm *ConnectionManager) Stats() sql.DBStats {
	return cm.db.Stats()
}

// ReportStats logs pool statistics every interval until ctx is done, and
// warns when callers had to wait for a connection.
func (cm *ConnectionManager) ReportStats(ctx context.Context, interval time.Duration, logger *observability.Logger) {
	var lastWaits int64
	async.Every(ctx, interval, "db pool stats", func(ctx context.Context) {
		stats := cm.db.Stats()
		entry := logger.WithFields(map[string]interface{}{
			"open":       stats.OpenConnections,
			"in_use":     stats.InUse,
			"idle":       stats.Idle,
			"max_open":   stats.MaxOpenConnections,
			"wait_count": stats.WaitCount,
		})
		if stats.WaitCount > lastWaits {
			entry.Warn("database pool saturated")
		} else {
			entry.Debug("database pool stats")
		}
		lastWaits = stats.WaitCount
	})
}

// Close closes the pool
func (cm *ConnectionManager) Close() error {
	if err := cm.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
