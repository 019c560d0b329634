// Package profilepg reads and writes portal profile records in Postgres.
package profilepg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/target/portal-access/internal/domain/access"
	apperrors "github.com/target/portal-access/internal/errors"
	"github.com/target/portal-access/internal/ports"
)

// Repo is a ports.ProfileSource over the user_profiles table.
type Repo struct {
	db *sql.DB
}

var _ ports.ProfileSource = (*Repo)(nil)

// NewRepo wraps db.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// GetProfile returns the stored fields for userID. A user without a row has an
// empty profile.
func (r *Repo) GetProfile(ctx context.Context, userID string) (access.ProfileRecord, error) {
	if userID == "" {
		return nil, apperrors.ValidationField("user_id", "user ID cannot be empty")
	}

	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT fields FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return access.ProfileRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", apperrors.MapDBError(err))
	}

	rec := access.ProfileRecord{}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return rec, nil
}

// Upsert merges fields into the user's stored profile. Keys with a nil value are
// removed from the record.
func (r *Repo) Upsert(ctx context.Context, userID string, fields access.ProfileRecord) error {
	if userID == "" {
		return apperrors.ValidationField("user_id", "user ID cannot be empty")
	}

	payload, dropJSON, err := splitFields(fields)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO user_profiles (user_id, fields, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (user_id) DO UPDATE
		SET fields = (user_profiles.fields || EXCLUDED.fields)
		             - ARRAY(SELECT jsonb_array_elements_text($3::jsonb)),
		    updated_at = now()`
	if _, err := r.db.ExecContext(ctx, q, userID, payload, dropJSON); err != nil {
		return fmt.Errorf("upsert profile: %w", apperrors.MapDBError(err))
	}
	return nil
}

// splitFields encodes the values to merge and the keys to remove. The removal list
// is always a JSON array, empty when nothing is removed.
func splitFields(fields access.ProfileRecord) (set, drop string, err error) {
	keep := make(map[string]any, len(fields))
	remove := []string{}
	for k, v := range fields {
		if v == nil {
			remove = append(remove, k)
			continue
		}
		keep[k] = v
	}
	slices.Sort(remove)

	setJSON, err := json.Marshal(keep)
	if err != nil {
		return "", "", fmt.Errorf("encode profile: %w", err)
	}
	dropJSON, err := json.Marshal(remove)
	if err != nil {
		return "", "", fmt.Errorf("encode dropped keys: %w", err)
	}
	return string(setJSON), string(dropJSON), nil
}
