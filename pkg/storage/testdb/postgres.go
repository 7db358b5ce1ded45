package testdb

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// PostgresURLEnv names the variable holding an externally provided test database
const PostgresURLEnv = "TEST_POSTGRES_URL"

// Postgres connects to the database named by TEST_POSTGRES_URL, skipping the
// test when it is unset or unreachable. Callers apply their own migrations.
func Postgres(t testing.TB) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	dbURL := os.Getenv(PostgresURLEnv)
	if dbURL == "" {
		t.Skipf("Skipping test: %s environment variable not set", PostgresURLEnv)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
