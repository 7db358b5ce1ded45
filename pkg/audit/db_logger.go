package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/platinummonkey/arena/pkg/observability"
	"github.com/platinummonkey/arena/pkg/storage/migrations"
)

// DBLogger persists audit events to the audit_events table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger
func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db}
}

func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	err := l.db.QueryRowContext(ctx, `
		INSERT INTO audit_events (event_type, status, user_id, resource_type, resource_id, request_id, message, error_message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		string(event.EventType),
		string(event.Status),
		event.UserID,
		nullString(string(event.ResourceType)),
		nullString(event.ResourceID),
		nullString(event.RequestID),
		nullString(event.Message),
		nullString(event.ErrorMessage),
		metadata,
		event.Timestamp,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

func (l *DBLogger) Close() error { return nil }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// GetMigrations returns the audit table migrations
func GetMigrations() []migrations.Migration {
	return []migrations.Migration{
		{
			Version:     1,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					user_id BIGINT,
					resource_type VARCHAR(50),
					resource_id VARCHAR(255),
					request_id VARCHAR(64),
					message TEXT,
					error_message TEXT,
					metadata JSONB,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON audit_events(created_at);
				CREATE INDEX IF NOT EXISTS idx_audit_events_user_id ON audit_events(user_id);
				CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource_type, resource_id);
			`,
		},
	}
}

// RunMigrations applies the audit migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	return migrations.Run(ctx, db, "audit_migrations", GetMigrations(), logger)
}
