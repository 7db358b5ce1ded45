package rbac

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/arena/pkg/observability"
	"github.com/platinummonkey/arena/pkg/storage/migrations"
)

// GetMigrations returns the identity and RBAC schema migrations for Postgres
func GetMigrations() []migrations.Migration {
	return []migrations.Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					email VARCHAR(255) NOT NULL,
					full_name VARCHAR(255),
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users(LOWER(email));
			`,
		},
		{
			Version:     2,
			Description: "Create permissions and roles tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					code VARCHAR(128) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					module VARCHAR(64) NOT NULL
				);

				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(128) NOT NULL UNIQUE,
					description TEXT,
					is_system_role BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);
			`,
		},
		{
			Version:     3,
			Description: "Create role_permissions and user_roles tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					granted_at TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE TABLE IF NOT EXISTS user_roles (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					granted_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					granted_at TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (user_id, role_id)
				);

				CREATE INDEX IF NOT EXISTS idx_role_permissions_permission_id ON role_permissions(permission_id);
				CREATE INDEX IF NOT EXISTS idx_user_roles_role_id ON user_roles(role_id);
			`,
		},
	}
}

// RunMigrations applies the RBAC migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	return migrations.Run(ctx, db, "rbac_migrations", GetMigrations(), logger)
}
