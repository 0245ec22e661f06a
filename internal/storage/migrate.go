package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// Migrations apply additively and are safe to re-run: each version is
// recorded in schema_version and skipped on subsequent starts.
type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{1, "initial_schema", migrateV1InitialSchema},
	{2, "state_tracking", migrateV2StateTracking},
	{3, "config_settings", migrateV3ConfigSettings},
}

// Migrate brings the schema up to the latest version.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if db == nil {
		return errors.New("db is nil")
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := m.apply(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		logger.Info("applied migration", slog.Int("version", m.version), slog.String("name", m.name))
	}

	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}

func migrateV1InitialSchema(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS targets (
			name TEXT PRIMARY KEY,
			base_url TEXT NOT NULL,
			phrases TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_target_name ON targets(name COLLATE NOCASE);
	`)
	return err
}

func migrateV2StateTracking(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settings (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			description TEXT
		);
		CREATE TABLE IF NOT EXISTS settings_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			old_value TEXT,
			new_value TEXT NOT NULL,
			changed_at TEXT NOT NULL DEFAULT (datetime('now')),
			source TEXT,
			reason TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_settings_log_name ON settings_log(name, changed_at DESC);
	`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settings (name, value, description)
		VALUES ('listen_mode', 'trigger', 'Current listening mode: inactive, trigger, or active')
	`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO settings_log (name, old_value, new_value, source, reason)
		VALUES ('listen_mode', NULL, 'trigger', 'migration', 'Initial setup')
	`)
	return err
}

func migrateV3ConfigSettings(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			type TEXT NOT NULL CHECK(type IN ('bool', 'int', 'float', 'str')),
			description TEXT,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return err
	}

	defaults := []struct {
		key, value, typ, description string
	}{
		{"enable_preroll_buffer", "false", "bool", "Capture audio preceding the trigger event"},
		{"preroll_buffer_seconds", "2.0", "float", "Seconds of audio buffered before the trigger"},
		{"record_window_seconds", "3.0", "float", "Length of each capture window"},
		{"sample_rate", "16000", "int", "Capture sample rate in Hz"},
		{"whisper_language", "auto", "str", "Transcription language hint, or 'auto'"},
	}
	for _, d := range defaults {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO config (key, value, type, description) VALUES (?, ?, ?, ?)
		`, d.key, d.value, d.typ, d.description); err != nil {
			return err
		}
	}
	return nil
}
