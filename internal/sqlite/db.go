package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

// RunMigrations creates the schema. The score blob rides in the same
// database as the index tables, but rows are written independently: a
// project index row may exist before its contributor row lands.
func (db *DB) RunMigrations() error {
	migration := `
-- Accounts
CREATE TABLE IF NOT EXISTS users (
    username TEXT PRIMARY KEY NOT NULL,
    password_hash TEXT NOT NULL,
    email TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Project index
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY NOT NULL,
    name TEXT NOT NULL,
    owner TEXT NOT NULL REFERENCES users(username),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner);

-- Who may edit what
CREATE TABLE IF NOT EXISTS contributors (
    username TEXT NOT NULL REFERENCES users(username),
    project_id TEXT NOT NULL REFERENCES projects(id),
    PRIMARY KEY (username, project_id)
);
CREATE INDEX IF NOT EXISTS idx_contributors_project ON contributors(project_id);

-- Project content: metadata and parts as discrete JSON fields
CREATE TABLE IF NOT EXISTS scores (
    project_id TEXT PRIMARY KEY NOT NULL,
    metadata TEXT NOT NULL,
    parts TEXT NOT NULL,
    saved_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := db.Exec(migration)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
