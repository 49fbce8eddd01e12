package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/heartwise/backend/internal/db"
	"github.com/heartwise/backend/internal/models"
)

// PostgresPasswordResetRepository persists single-use password reset tokens.
type PostgresPasswordResetRepository struct {
	pool db.Pool
}

// NewPostgresPasswordResetRepository constructs a reset token repository backed by PostgreSQL.
func NewPostgresPasswordResetRepository(pool db.Pool) *PostgresPasswordResetRepository {
	return &PostgresPasswordResetRepository{pool: pool}
}

const resetColumns = `id, user_id, token, expires_at, is_used, created_at`

func scanReset(row rowScanner) (models.PasswordResetToken, error) {
	var t models.PasswordResetToken
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.IsUsed, &t.CreatedAt)
	return t, err
}

// Create stores a new token.
func (r *PostgresPasswordResetRepository) Create(ctx context.Context, t models.PasswordResetToken) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO password_reset_tokens (id, user_id, token, expires_at, is_used, created_at)
        VALUES ($1, $2, $3, $4, FALSE, $5)
    `, t.ID, t.UserID, t.Token, t.ExpiresAt, t.CreatedAt); err != nil {
		if mapped := mapWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

// FindActiveForUser returns the user's newest token that is unused and unexpired at now.
func (r *PostgresPasswordResetRepository) FindActiveForUser(ctx context.Context, userID string, now time.Time) (models.PasswordResetToken, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.PasswordResetToken{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	t, err := scanReset(conn.QueryRow(ctx, `
        SELECT `+resetColumns+`
        FROM password_reset_tokens
        WHERE user_id = $1 AND NOT is_used AND expires_at > $2
        ORDER BY created_at DESC
        LIMIT 1
    `, userID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PasswordResetToken{}, ErrNotFound
		}
		return models.PasswordResetToken{}, fmt.Errorf("select active reset token: %w", err)
	}
	return t, nil
}

// FindByToken loads a token by its secret value.
func (r *PostgresPasswordResetRepository) FindByToken(ctx context.Context, token string) (models.PasswordResetToken, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.PasswordResetToken{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	t, err := scanReset(conn.QueryRow(ctx, `SELECT `+resetColumns+` FROM password_reset_tokens WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PasswordResetToken{}, ErrNotFound
		}
		return models.PasswordResetToken{}, fmt.Errorf("select reset token: %w", err)
	}
	return t, nil
}

// ListUnusedForUser returns the user's tokens that have not been redeemed, newest first.
func (r *PostgresPasswordResetRepository) ListUnusedForUser(ctx context.Context, userID string) ([]models.PasswordResetToken, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+resetColumns+`
        FROM password_reset_tokens
        WHERE user_id = $1 AND NOT is_used
        ORDER BY created_at DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query reset tokens: %w", err)
	}
	defer rows.Close()

	tokens := []models.PasswordResetToken{}
	for rows.Next() {
		t, err := scanReset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reset token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reset tokens: %w", err)
	}
	return tokens, nil
}

// Consume marks the token used and stores the new password hash for its owner
// in one transaction. The conditional update lets only one caller redeem a
// token; a used, expired, or unknown token yields ErrNotFound.
func (r *PostgresPasswordResetRepository) Consume(ctx context.Context, token, passwordHash string, now time.Time) (string, error) {
	var userID string
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
            UPDATE password_reset_tokens
            SET is_used = TRUE
            WHERE token = $1 AND NOT is_used AND expires_at > $2
            RETURNING user_id
        `, token, now).Scan(&userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("consume reset token: %w", err)
		}

		tag, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, userID, passwordHash, now)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}
