// Package store implements the Session & Context Store:
// per-workspace SQLite persistence for decisions, progress entries,
// the active context singleton, links, patterns/custom data/glossary,
// and full-text + semantic search.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/dopectx/core/internal/config"
)

// Store wraps one workspace's SQLite connection.
type Store struct {
	db          *sql.DB
	workspaceID string
}

// Open opens (creating if necessary) the SQLite database for a
// workspace under cfg.RootDir, configures WAL-mode pragmas the way a
// single-writer CLI/daemon pair needs, and runs migrations.
func Open(ctx context.Context, cfg config.StoreConfig, workspaceID string) (*Store, error) {
	root, err := config.ExpandHome(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("expand store root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	dbPath := filepath.Join(root, workspaceID+".db")

	db, err := sql.Open("sqlite", normalizeDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single active writer keeps WAL-mode SQLite contention-free for
	// this process; concurrent workspace access across processes is
	// mediated by SQLite's own locking, not by this pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeoutMS),
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	if err := MigrateWithLock(db, dbPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, workspaceID: workspaceID}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeDSN turns a plain filesystem path into a modernc.org/sqlite
// DSN that creates the file if missing and serializes writers through a
// single BEGIN IMMEDIATE transaction lock.
func normalizeDSN(dbPath string) string {
	if dbPath == ":memory:" {
		return "file::memory:?cache=shared"
	}
	if strings.HasPrefix(dbPath, "file:") {
		return dbPath
	}
	return "file:" + dbPath + "?mode=rwc&_txlock=immediate"
}
