package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"noteshare-chat/internal/apperr"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Ensure returns the profile for userID, creating it on first use.
// The ON CONFLICT no-op plus re-select makes concurrent first calls safe.
func (r *Repository) Ensure(ctx context.Context, userID int64, displayName string) (*Profile, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, display_name) VALUES ($1, $2)
         ON CONFLICT (user_id) DO NOTHING`,
		userID, displayName)
	if err != nil {
		return nil, err
	}

	p := &Profile{}
	err = r.db.QueryRowContext(ctx,
		`SELECT id, user_id, display_name, created_at FROM profiles WHERE user_id = $1`,
		userID).Scan(&p.ID, &p.UserID, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) ByID(ctx context.Context, id int64) (*Profile, error) {
	p := &Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, display_name, created_at FROM profiles WHERE id = $1`,
		id).Scan(&p.ID, &p.UserID, &p.DisplayName, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ByIDs resolves a set of profiles. Any missing id fails the whole call
// with NotFound so group creation never silently drops a member.
func (r *Repository) ByIDs(ctx context.Context, ids []int64) ([]Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, display_name, created_at FROM profiles WHERE id = ANY($1)`,
		ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.UserID, &p.DisplayName, &p.CreatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(profiles) != len(ids) {
		return nil, fmt.Errorf("unresolvable member profile: %w", apperr.ErrNotFound)
	}
	return profiles, nil
}
