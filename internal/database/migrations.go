package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			-- One row per refresh attempt, written when the attempt starts
			CREATE TABLE refreshes (
				id TEXT PRIMARY KEY,
				source TEXT NOT NULL,
				file_path TEXT NOT NULL,
				remote_path TEXT,
				status TEXT NOT NULL DEFAULT 'running',
				folder_refreshed BOOLEAN NOT NULL DEFAULT false,
				item_refreshed BOOLEAN NOT NULL DEFAULT false,
				rating_key TEXT,
				strategy TEXT,
				diagnostic_log TEXT,
				error TEXT,
				created_at TIMESTAMP NOT NULL,
				completed_at TIMESTAMP
			);

			CREATE INDEX idx_refreshes_created_at ON refreshes(created_at);
			CREATE INDEX idx_refreshes_file_path ON refreshes(file_path);
		`,
	},
	{
		Version: 2,
		Name:    "refreshes_status_index",
		SQL: `
			-- Startup recovery and cleanup both filter on status
			CREATE INDEX idx_refreshes_status ON refreshes(status);
		`,
	},
}

// Migrate applies every migration newer than the recorded schema version,
// each in its own transaction.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")
		if err := db.Transaction(func(tx *sql.Tx) error { return applyMigration(tx, m) }); err != nil {
			return err
		}
		applied++
	}

	log.Debug().Int("from_version", current).Int("applied", applied).Msg("Database migrations complete")
	return nil
}

// SchemaVersion returns the newest applied migration, or 0 for a new database.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current migration version: %w", err)
	}
	return version, nil
}

func applyMigration(tx *sql.Tx, m migration) error {
	for i, stmt := range splitSQLStatements(m.SQL) {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d statement %d failed: %w", m.Version, i+1, err)
		}
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	return nil
}

// splitSQLStatements splits a migration into statements on line-ending
// semicolons. Comment and blank lines are dropped.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" && stmt != ";" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for line := range strings.SplitSeq(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()

	return statements
}
