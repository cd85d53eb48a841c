package store

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// RunMigrations applies every pending migration under migrations/ using
// goose. Safe to call on a fresh database or one already at the latest
// version.
func RunMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetVerbose(false)
	goose.SetLogger(goose.NopLogger())

	// goose's "sqlite3" dialect controls SQL generation only; the
	// registered driver is still modernc.org/sqlite's pure-Go "sqlite".
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrateWithLock runs RunMigrations behind an advisory file lock, so a
// CLI invocation and the broker daemon starting against the same
// workspace database never race applying migrations concurrently.
// In-memory databases (used by tests) skip the lock.
func MigrateWithLock(db *sql.DB, dbPath string) error {
	if dbPath == ":memory:" || strings.Contains(dbPath, ":memory:") {
		return RunMigrations(db)
	}
	lock, err := lockFile(dbPath)
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer unlockFile(lock)
	return RunMigrations(db)
}
