package events

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/arena/pkg/observability"
	"github.com/platinummonkey/arena/pkg/storage/migrations"
)

// GetMigrations returns the event schema migrations for Postgres. They depend
// on the users table created by the rbac migrations.
func GetMigrations() []migrations.Migration {
	return []migrations.Migration{
		{
			Version:     1,
			Description: "Create events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS events (
					id BIGSERIAL PRIMARY KEY,
					public_id UUID NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					organizer_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_events_organizer_id ON events(organizer_id);
			`,
		},
		{
			Version:     2,
			Description: "Create event_admins table",
			SQL: `
				CREATE TABLE IF NOT EXISTS event_admins (
					id BIGSERIAL PRIMARY KEY,
					event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					created_at TIMESTAMPTZ NOT NULL,
					UNIQUE (event_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_event_admins_user_id ON event_admins(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create event_invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS event_invitations (
					id BIGSERIAL PRIMARY KEY,
					event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					token VARCHAR(128) NOT NULL UNIQUE,
					invited_by BIGINT NOT NULL REFERENCES users(id),
					expires_at TIMESTAMPTZ NOT NULL,
					accepted_at TIMESTAMPTZ,
					accepted_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_event_invitations_pending
					ON event_invitations(event_id) WHERE accepted_at IS NULL;
			`,
		},
	}
}

// RunMigrations applies the event migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	return migrations.Run(ctx, db, "events_migrations", GetMigrations(), logger)
}
