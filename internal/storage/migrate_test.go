package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestMigrate_CreatesSchemaAndSeeds(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "echonet.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := Migrate(ctx, db, logger); err != nil {
		t.Fatal(err)
	}

	for _, table := range []string{"targets", "settings", "settings_log", "config", "schema_version"} {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing: %v", table, err)
		}
	}

	var mode string
	if err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE name='listen_mode'`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "trigger" {
		t.Errorf("seeded listen_mode = %q, want trigger", mode)
	}

	var logCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings_log`).Scan(&logCount); err != nil {
		t.Fatal(err)
	}
	if logCount != 1 {
		t.Errorf("expected one seeded audit row, got %d", logCount)
	}

	var configCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM config`).Scan(&configCount); err != nil {
		t.Fatal(err)
	}
	if configCount != 5 {
		t.Errorf("expected 5 seeded config rows, got %d", configCount)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "echonet.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := Migrate(ctx, db, logger); err != nil {
		t.Fatal(err)
	}
	if err := Migrate(ctx, db, logger); err != nil {
		t.Fatalf("re-running migrations must be safe: %v", err)
	}

	var versions int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&versions); err != nil {
		t.Fatal(err)
	}
	if versions != len(migrations) {
		t.Errorf("expected %d recorded versions, got %d", len(migrations), versions)
	}

	var logCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings_log`).Scan(&logCount); err != nil {
		t.Fatal(err)
	}
	if logCount != 1 {
		t.Errorf("re-run must not duplicate seeds, got %d audit rows", logCount)
	}
}
