// Package testdb opens in-memory SQLite databases carrying the access-control
// schema, for use by package tests. The schema mirrors the Postgres
// migrations in rbac and events with SQLite column types.
package testdb

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Schema is the SQLite rendition of the production tables
const Schema = `
CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE permissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT,
	module TEXT NOT NULL
);

CREATE TABLE roles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	description TEXT,
	is_system_role BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE role_permissions (
	role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
	permission_id INTEGER NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
	granted_at TIMESTAMP NOT NULL,
	PRIMARY KEY (role_id, permission_id)
);

CREATE TABLE user_roles (
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
	granted_by INTEGER,
	granted_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, role_id)
);

CREATE TABLE events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	public_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	organizer_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE event_admins (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (event_id, user_id)
);

CREATE TABLE event_invitations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	email TEXT NOT NULL,
	token TEXT NOT NULL UNIQUE,
	invited_by INTEGER NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	accepted_at TIMESTAMP,
	accepted_by INTEGER,
	created_at TIMESTAMP NOT NULL
);
`

// New opens a fresh in-memory database with Schema applied. The pool is
// pinned to one connection because every SQLite memory connection is its
// own database.
func New(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=1")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return db
}

// InsertUser creates an active user and returns its id
func InsertUser(t testing.TB, db *sql.DB, username, email string) int64 {
	t.Helper()

	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(`
		INSERT INTO users (username, email, is_active, created_at, updated_at)
		VALUES ($1, $2, TRUE, $3, $4)
		RETURNING id
	`, username, email, now, now).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert user %s: %v", username, err)
	}
	return id
}

// InsertEvent creates an event owned by organizerID and returns its id and
// public id
func InsertEvent(t testing.TB, db *sql.DB, name string, organizerID int64) (int64, uuid.UUID) {
	t.Helper()

	publicID := uuid.New()
	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(`
		INSERT INTO events (public_id, name, organizer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, publicID, name, organizerID, now, now).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert event %s: %v", name, err)
	}
	return id, publicID
}
