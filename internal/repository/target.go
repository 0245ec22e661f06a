package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bbureau12/echonet/internal/domain"
)

// TargetRepository persists the target directory. Names are stored
// lowercased; lookups are case-insensitive.
type TargetRepository struct {
	db *sql.DB
}

func NewTargetRepository(db *sql.DB) *TargetRepository {
	return &TargetRepository{db: db}
}

// Upsert creates or fully replaces the target keyed by its lowercased name.
func (r *TargetRepository) Upsert(ctx context.Context, t domain.Target) error {
	phrases, err := json.Marshal(t.Phrases)
	if err != nil {
		return fmt.Errorf("encode phrases: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO targets (name, base_url, phrases)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			base_url = excluded.base_url,
			phrases = excluded.phrases
	`, strings.ToLower(t.Name), t.BaseURL, string(phrases))
	if err != nil {
		return fmt.Errorf("upsert target %q: %w", t.Name, err)
	}
	return nil
}

// Get returns the target with the given name, or sql.ErrNoRows.
func (r *TargetRepository) Get(ctx context.Context, name string) (domain.Target, error) {
	var t domain.Target
	var phrases string
	err := r.db.QueryRowContext(ctx, `
		SELECT name, base_url, phrases FROM targets WHERE name = ? COLLATE NOCASE
	`, strings.ToLower(name)).Scan(&t.Name, &t.BaseURL, &phrases)
	if err != nil {
		return domain.Target{}, err
	}
	if err := json.Unmarshal([]byte(phrases), &t.Phrases); err != nil {
		return domain.Target{}, fmt.Errorf("decode phrases for %q: %w", name, err)
	}
	return t, nil
}

// Delete removes the target. Reports whether a row was removed.
func (r *TargetRepository) Delete(ctx context.Context, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM targets WHERE name = ? COLLATE NOCASE`, strings.ToLower(name))
	if err != nil {
		return false, fmt.Errorf("delete target %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// All returns every registered target in insertion (rowid) order.
func (r *TargetRepository) All(ctx context.Context) ([]domain.Target, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, base_url, phrases FROM targets ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []domain.Target
	for rows.Next() {
		var t domain.Target
		var phrases string
		if err := rows.Scan(&t.Name, &t.BaseURL, &phrases); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(phrases), &t.Phrases); err != nil {
			return nil, fmt.Errorf("decode phrases for %q: %w", t.Name, err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// PhrasePair maps one trigger phrase to its owning target.
type PhrasePair struct {
	Phrase string
	Target string
}

// PhraseMap flattens every non-empty trigger phrase across all targets,
// lowercased, preserving target order then phrase order within a target.
// Trigger matching depends on this ordering: first pair wins.
func (r *TargetRepository) PhraseMap(ctx context.Context) ([]PhrasePair, error) {
	targets, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []PhrasePair
	for _, t := range targets {
		for _, p := range t.Phrases {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				out = append(out, PhrasePair{Phrase: p, Target: strings.ToLower(t.Name)})
			}
		}
	}
	return out, nil
}
