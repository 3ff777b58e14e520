// Package db opens the workspace SQLite database.
package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir = ".fleetline"
	dbFile       = "fleetline.db"
)

// pragmas applied on every connection. WAL keeps the CLI and a running
// server from blocking each other on short transactions; the busy timeout
// covers the rest.
var pragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
}

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the .fleetline directory under the workspace root
// and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Dir(Path(workspace))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open opens the workspace database, creating the workspace directory if
// needed.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := "file:" + Path(cfg.Workspace) + "?" + strings.Join(pragmas, "&")
	return sql.Open("sqlite", dsn)
}

// Path returns the database file location for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, dbFile)
}
