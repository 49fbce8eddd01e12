package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/heartwise/backend/internal/db"
	"github.com/heartwise/backend/internal/models"
)

// PostgresProfileRepository stores the one-per-user public profile.
type PostgresProfileRepository struct {
	pool db.Pool
}

// NewPostgresProfileRepository constructs a profile repository backed by PostgreSQL.
func NewPostgresProfileRepository(pool db.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

// FindByUserID loads the profile owned by userID.
func (r *PostgresProfileRepository) FindByUserID(ctx context.Context, userID string) (models.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Profile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, user_id, display_name, bio, age, location, image_key, is_private, created_at, updated_at
        FROM profiles
        WHERE user_id = $1
    `, userID)

	var p models.Profile
	if err := row.Scan(&p.ID, &p.UserID, &p.DisplayName, &p.Bio, &p.Age, &p.Location, &p.ImageKey, &p.IsPrivate, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, ErrNotFound
		}
		return models.Profile{}, fmt.Errorf("select profile: %w", err)
	}
	return p, nil
}

// Upsert creates the user's profile or replaces its editable fields, returning
// the id of the stored row.
func (r *PostgresProfileRepository) Upsert(ctx context.Context, profile models.Profile) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id string
	err = conn.QueryRow(ctx, `
        INSERT INTO profiles (id, user_id, display_name, bio, age, location, image_key, is_private, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
        ON CONFLICT (user_id) DO UPDATE SET
            display_name = EXCLUDED.display_name,
            bio = EXCLUDED.bio,
            age = EXCLUDED.age,
            location = EXCLUDED.location,
            image_key = EXCLUDED.image_key,
            is_private = EXCLUDED.is_private,
            updated_at = EXCLUDED.updated_at
        RETURNING id
    `, profile.ID, profile.UserID, profile.DisplayName, profile.Bio, profile.Age, profile.Location, profile.ImageKey, profile.IsPrivate, profile.UpdatedAt).Scan(&id)
	if err != nil {
		if mapped := mapWriteError(err); mapped != nil {
			return "", mapped
		}
		return "", fmt.Errorf("upsert profile: %w", err)
	}
	return id, nil
}
