package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
)

// TestDBConfig holds test database configuration
type TestDBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DefaultTestDBConfig returns a default test database configuration
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getIntEnv("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		Database: getEnv("TEST_DB_NAME", "zonewarden_test"),
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// DatabaseURL returns a PostgreSQL connection string
func (c TestDBConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

// SetupTestDB opens a connection to the test database, creating it if
// needed. The test is skipped when PostgreSQL is unreachable, so unit runs
// without a database stay green. The connection is closed on cleanup.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultTestDBConfig()

	adminURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/postgres?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.SSLMode,
	)

	adminDB, err := sql.Open("postgres", adminURL)
	if err != nil {
		t.Skipf("PostgreSQL unavailable: %v", err)
	}
	defer adminDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := adminDB.PingContext(ctx); err != nil {
		t.Skipf("PostgreSQL unavailable: %v", err)
	}

	// Database might already exist, which is fine
	if _, err := adminDB.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(cfg.Database)); err != nil {
		t.Logf("Test database creation: %v (may already exist)", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Skipf("Test database unavailable: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})
	return db
}

// CreateZonesTable creates a commercial zones table named table and drops
// it again when the test finishes.
func CreateZonesTable(t *testing.T, db *sql.DB, table string) {
	t.Helper()
	quoted := pq.QuoteIdentifier(table)
	_, err := db.Exec(fmt.Sprintf(`
		DROP TABLE IF EXISTS %[1]s;
		CREATE TABLE %[1]s (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			geometry JSONB,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`, quoted))
	if err != nil {
		t.Fatalf("failed to create zones table: %v", err)
	}
	t.Cleanup(func() {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + quoted); err != nil {
			t.Logf("Warning: Failed to drop table %s: %v", table, err)
		}
	})
}

// InsertZone stores a zone row and returns its id. geometry is written
// verbatim into the jsonb column; pass an empty string for NULL.
func InsertZone(t *testing.T, db *sql.DB, table, name, geometry string, active bool) int64 {
	t.Helper()
	var geom interface{}
	if geometry != "" {
		geom = geometry
	}
	var id int64
	err := db.QueryRow(
		fmt.Sprintf(`INSERT INTO %s (name, geometry, active) VALUES ($1, $2::jsonb, $3) RETURNING id`, pq.QuoteIdentifier(table)),
		name, geom, active,
	).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert zone %s: %v", name, err)
	}
	return id
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}
