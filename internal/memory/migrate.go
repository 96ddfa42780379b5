package memory

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// SchemaVersion is the schema version RunMigrations brings a database to.
const SchemaVersion = 3

// migration represents a single schema migration step.
type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of schema migrations.
// Each migration is applied exactly once, tracked in the schema_version table.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: reminders",
		SQL: `
		CREATE TABLE IF NOT EXISTS reminders (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL UNIQUE,
			sender_id   TEXT NOT NULL,
			task        TEXT NOT NULL,
			at_ms       INTEGER NOT NULL,
			created_ms  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reminders_sender ON reminders(sender_id, seq);
		`,
	},
	{
		Version:     2,
		Description: "v2: reply channel and delivery tracking",
		SQL: `
		ALTER TABLE reminders ADD COLUMN channel TEXT NOT NULL DEFAULT 'whatsapp';
		ALTER TABLE reminders ADD COLUMN notified_ms INTEGER;
		CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(notified_ms, at_ms);
		`,
	},
	{
		Version:     3,
		Description: "v3: reminder language",
		SQL: `
		ALTER TABLE reminders ADD COLUMN language TEXT NOT NULL DEFAULT 'en';
		`,
	},
}

// RunMigrations applies all pending schema migrations.
// It uses a schema_version table to track which migrations have been applied.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		logger.Info("applying migration",
			"version", m.Version,
			"description", m.Description,
		)
		if err := applyMigrationStatements(db, m, logger); err != nil {
			return err
		}
		logger.Info("migration applied", "version", m.Version)
	}

	return nil
}

// applyMigrationStatements applies each statement of m in one transaction,
// skipping "duplicate column" and "already exists" errors so a partially
// upgraded database converges.
func applyMigrationStatements(db *sql.DB, m migration, logger *slog.Logger) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", m.Version, err)
	}
	defer tx.Rollback()

	for _, stmt := range splitSQL(m.SQL) {
		if _, err := tx.Exec(stmt); err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists") {
				logger.Debug("migration statement skipped (already applied)", "stmt_prefix", truncate(stmt, 60))
				continue
			}
			return fmt.Errorf("migration v%d statement failed: %w\nSQL: %s", m.Version, err, truncate(stmt, 200))
		}
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record migration v%d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration v%d: %w", m.Version, err)
	}
	return nil
}

// splitSQL splits a multi-statement SQL string on semicolons.
func splitSQL(sql string) []string {
	var result []string
	for _, s := range strings.Split(sql, ";") {
		if s = strings.TrimSpace(s); s != "" {
			result = append(result, s)
		}
	}
	return result
}

func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// GetSchemaVersion returns the highest applied migration version.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return v, nil
}
