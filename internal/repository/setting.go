package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bbureau12/echonet/internal/domain"
)

// SettingRepository persists operational settings, their audit log, and
// the typed config table.
type SettingRepository struct {
	db *sql.DB
}

func NewSettingRepository(db *sql.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// All returns every setting ordered by name.
func (r *SettingRepository) All(ctx context.Context) ([]domain.Setting, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, value, updated_at, COALESCE(description, '')
		FROM settings ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Setting
	for rows.Next() {
		var s domain.Setting
		if err := rows.Scan(&s.Name, &s.Value, &s.UpdatedAt, &s.Description); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Values returns the current name -> value map, used to seed the cache.
func (r *SettingRepository) Values(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// UpsertAndLog durably writes the new value and appends exactly one audit
// row, in a single transaction. Callers are responsible for skipping
// no-op writes; this method always logs.
func (r *SettingRepository) UpsertAndLog(ctx context.Context, name, value string, oldValue *string, source, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settings (name, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, name, value); err != nil {
		return fmt.Errorf("upsert setting %q: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settings_log (name, old_value, new_value, changed_at, source, reason)
		VALUES (?, ?, ?, datetime('now'), ?, ?)
	`, name, oldValue, value, source, reason); err != nil {
		return fmt.Errorf("log setting change %q: %w", name, err)
	}

	return tx.Commit()
}

// History returns audit rows newest first, optionally filtered by name.
func (r *SettingRepository) History(ctx context.Context, name string, limit int) ([]domain.SettingChange, error) {
	query := `
		SELECT id, name, old_value, new_value, changed_at, COALESCE(source, ''), COALESCE(reason, '')
		FROM settings_log
	`
	args := []any{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY changed_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SettingChange
	for rows.Next() {
		var c domain.SettingChange
		if err := rows.Scan(&c.ID, &c.Name, &c.OldValue, &c.NewValue, &c.ChangedAt, &c.Source, &c.Reason); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetConfig returns one typed config row, or sql.ErrNoRows.
func (r *SettingRepository) GetConfig(ctx context.Context, key string) (domain.ConfigSetting, error) {
	var c domain.ConfigSetting
	err := r.db.QueryRowContext(ctx, `
		SELECT key, value, type, COALESCE(description, ''), updated_at
		FROM config WHERE key = ?
	`, key).Scan(&c.Key, &c.Value, &c.Type, &c.Description, &c.UpdatedAt)
	return c, err
}

// AllConfig returns every config row ordered by key.
func (r *SettingRepository) AllConfig(ctx context.Context) ([]domain.ConfigSetting, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, value, type, COALESCE(description, ''), updated_at
		FROM config ORDER BY key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ConfigSetting
	for rows.Next() {
		var c domain.ConfigSetting
		if err := rows.Scan(&c.Key, &c.Value, &c.Type, &c.Description, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateConfig writes a pre-validated config value. Reports whether the
// key existed.
func (r *SettingRepository) UpdateConfig(ctx context.Context, key, value string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE config SET value = ?, updated_at = datetime('now') WHERE key = ?
	`, value, key)
	if err != nil {
		return false, fmt.Errorf("update config %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
