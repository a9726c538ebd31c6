package profile

import (
	"context"
	"errors"
	"fmt"

	"marketflow/auth"
	"marketflow/db"
)

// ErrNotFound signals the requested profile does not exist.
var ErrNotFound = errors.New("profile: not found")

var ErrInvalidInput = errors.New("profile: invalid input")

var ErrUnsupportedRole = errors.New("profile: role has no profile table")

// Repository provides access to buyer and seller profiles.
type Repository interface {
	Get(ctx context.Context, role auth.Role, userID string) (Profile, error)
	Upsert(ctx context.Context, p Profile) (Profile, error)
}

// PGRepository reads buyer_profiles and seller_profiles.
type PGRepository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *PGRepository {
	return &PGRepository{pool: pool}
}

func tableFor(role auth.Role) (string, error) {
	switch role {
	case auth.RoleBuyer:
		return "buyer_profiles", nil
	case auth.RoleSeller:
		return "seller_profiles", nil
	default:
		return "", ErrUnsupportedRole
	}
}

// Get fetches the profile of userID in role's profile table.
func (r *PGRepository) Get(ctx context.Context, role auth.Role, userID string) (Profile, error) {
	table, err := tableFor(role)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{Role: role}
	err = r.pool.QueryRow(ctx, `SELECT user_id::text, display_name, avatar_url, updated_at FROM `+table+` WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.DisplayName, &p.AvatarURL, &p.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("profile: query %s: %w", role, err)
	}
	return p, nil
}

func (r *PGRepository) Upsert(ctx context.Context, p Profile) (Profile, error) {
	table, err := tableFor(p.Role)
	if err != nil {
		return Profile{}, err
	}

	out := Profile{Role: p.Role}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO `+table+` (user_id, display_name, avatar_url, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    avatar_url = EXCLUDED.avatar_url,
		    updated_at = EXCLUDED.updated_at
		RETURNING user_id::text, display_name, avatar_url, updated_at
	`, p.UserID, p.DisplayName, p.AvatarURL, p.UpdatedAt).Scan(&out.UserID, &out.DisplayName, &out.AvatarURL, &out.UpdatedAt)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: upsert %s: %w", p.Role, err)
	}
	return out, nil
}
