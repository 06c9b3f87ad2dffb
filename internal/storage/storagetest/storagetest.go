// Package storagetest connects tests to a disposable Postgres database.
package storagetest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"libracatalog/internal/config"
	"libracatalog/internal/storage"
)

// DatabaseURL builds a key/value DSN from the standard PG* variables.
func DatabaseURL() string {
	get := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		get("PGHOST", "localhost"),
		get("PGPORT", "5432"),
		get("PGUSER", "user"),
		get("PGPASSWORD", "password"),
		get("PGDATABASE", "testdb"),
	)
}

// Open connects with the given driver, migrates the schema and empties every
// table. It skips the test if the connection cannot be established.
func Open(t testing.TB, driver string) storage.DB {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, config.DatabaseConfig{Driver: driver, URL: DatabaseURL(), MaxOpenConns: 10})
	if err != nil {
		t.Skipf("skipping postgres tests: could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m, err := storage.NewMigrator(db)
	if err != nil {
		t.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()
	if err := m.Up(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	_, err = db.Exec(ctx, `
		TRUNCATE catalog_events, reservations, borrowing_records, books, members RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
	return db
}
