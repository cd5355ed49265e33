package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the schema version this build writes.
var CurrentSchemaVersion = len(migrations)

// FileName is the database file created inside the base directory.
const FileName = "ctxpack.db"

// Init opens the snapshot database in baseDir (normally ~/.ctxpack),
// creating and migrating it as needed. The directory and file are private
// to the user where the platform allows it.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", baseDir, err)
	}
	_ = os.Chmod(baseDir, 0o700)

	// DSN pragmas apply to every pooled connection, not just the first.
	dbPath := filepath.Join(baseDir, FileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0o600)

	return db, nil
}

// migrations[i] moves the schema from version i to i+1.
var migrations = []string{
	// 1: named selections, unique per project among live rows
	`CREATE TABLE IF NOT EXISTS snapshots (
	  id             TEXT PRIMARY KEY,
	  project_root   TEXT NOT NULL,
	  name           TEXT NOT NULL,
	  state_version  INTEGER NOT NULL,
	  included_json  TEXT NOT NULL,
	  file_count     INTEGER NOT NULL,
	  model          TEXT,
	  tokens         INTEGER,
	  created_at     INTEGER NOT NULL,
	  deleted_at     INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_project_created
	ON snapshots(project_root, created_at DESC)
	WHERE deleted_at IS NULL;

	CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_project_name
	ON snapshots(project_root, name)
	WHERE deleted_at IS NULL;`,
}

// migrate brings the schema up to CurrentSchemaVersion. Each step runs in
// its own transaction together with the user_version bump. A database
// written by a newer build is refused rather than downgraded.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, CurrentSchemaVersion)
	}

	for v := version; v < CurrentSchemaVersion; v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d", v+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: set user_version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", v+1, err)
		}
	}
	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
