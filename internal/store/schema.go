package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// migration is one forward-only schema step. Steps run in order, each in
// its own transaction together with the version bump.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "files",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS files (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				content_hash TEXT NOT NULL UNIQUE,
				storage_path TEXT NOT NULL DEFAULT '',
				media_type TEXT NOT NULL DEFAULT '',
				size_bytes INTEGER NOT NULL DEFAULT 0,
				original_name TEXT NOT NULL DEFAULT '',
				suffix TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				upload_status TEXT NOT NULL DEFAULT 'pending',
				vectorization_status TEXT NOT NULL DEFAULT 'not_started',
				vectorized_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_files_media_type ON files(media_type)`,
			`CREATE INDEX IF NOT EXISTS idx_files_vectorization_status ON files(vectorization_status)`,
			`CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at)`,
		},
	},
	{
		version: 2,
		name:    "name and suffix lookups",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_files_original_name ON files(original_name COLLATE NOCASE)`,
			`CREATE INDEX IF NOT EXISTS idx_files_suffix ON files(suffix)`,
		},
	},
}

// schemaVersion is the version a fully migrated database reports.
func schemaVersion() int {
	return migrations[len(migrations)-1].version
}

// initSchema brings the database up to schemaVersion.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := readSchemaVersion(db)
	if err != nil {
		return err
	}
	if current > schemaVersion() {
		return fmt.Errorf("database schema v%d is newer than this build (v%d)", current, schemaVersion())
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		log.Debug("Applying migration", "version", m.version, "name", m.name)
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("migration v%d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func readSchemaVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, m.version); err != nil {
		return err
	}
	return tx.Commit()
}
