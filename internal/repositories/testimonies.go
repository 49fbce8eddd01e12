package repositories

import (
	"context"
	"fmt"

	"github.com/heartwise/backend/internal/db"
	"github.com/heartwise/backend/internal/models"
)

// PostgresTestimonyRepository persists testimonies and their moderation state.
type PostgresTestimonyRepository struct {
	pool db.Pool
}

// NewPostgresTestimonyRepository constructs a testimony repository backed by PostgreSQL.
func NewPostgresTestimonyRepository(pool db.Pool) *PostgresTestimonyRepository {
	return &PostgresTestimonyRepository{pool: pool}
}

const testimonyDetailsSelect = `
        SELECT t.id, t.user_id, t.title, t.story, t.category, t.is_anonymous, t.is_approved, t.created_at, ` + authorColumns + `
        FROM testimonies t
        JOIN users u ON u.id = t.user_id
        LEFT JOIN profiles p ON p.user_id = t.user_id`

// ListApproved returns up to limit newest approved testimonies, optionally by category.
func (r *PostgresTestimonyRepository) ListApproved(ctx context.Context, category string, limit int) ([]models.TestimonyDetails, error) {
	if category != "" && category != "all" {
		return r.query(ctx, testimonyDetailsSelect+`
        WHERE t.is_approved AND t.category = $1
        ORDER BY t.created_at DESC
        LIMIT $2`, category, limit)
	}
	return r.query(ctx, testimonyDetailsSelect+`
        WHERE t.is_approved
        ORDER BY t.created_at DESC
        LIMIT $1`, limit)
}

// ListPending returns testimonies awaiting moderation, oldest first.
func (r *PostgresTestimonyRepository) ListPending(ctx context.Context) ([]models.TestimonyDetails, error) {
	return r.query(ctx, testimonyDetailsSelect+`
        WHERE NOT t.is_approved
        ORDER BY t.created_at ASC`)
}

func (r *PostgresTestimonyRepository) query(ctx context.Context, query string, args ...any) ([]models.TestimonyDetails, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query testimonies: %w", err)
	}
	defer rows.Close()

	testimonies := []models.TestimonyDetails{}
	for rows.Next() {
		var t models.TestimonyDetails
		dest := append([]any{&t.ID, &t.UserID, &t.Title, &t.Story, &t.Category, &t.IsAnonymous, &t.IsApproved, &t.CreatedAt}, authorDest(&t.Author)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan testimony: %w", err)
		}
		testimonies = append(testimonies, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate testimonies: %w", err)
	}
	return testimonies, nil
}

// Create stores a testimony pending approval.
func (r *PostgresTestimonyRepository) Create(ctx context.Context, t models.Testimony) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO testimonies (id, user_id, title, story, category, is_anonymous, is_approved, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
    `, t.ID, t.UserID, t.Title, t.Story, t.Category, t.IsAnonymous, t.CreatedAt)
	if err != nil {
		if mapped := mapWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert testimony: %w", err)
	}
	return nil
}

// Approve publishes a testimony.
func (r *PostgresTestimonyRepository) Approve(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE testimonies SET is_approved = TRUE WHERE id = $1`, id)
}

// Delete rejects a testimony by removing it.
func (r *PostgresTestimonyRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM testimonies WHERE id = $1`, id)
}

func (r *PostgresTestimonyRepository) exec(ctx context.Context, query, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("modify testimony: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats counts testimonies by moderation state.
func (r *PostgresTestimonyRepository) Stats(ctx context.Context) (models.TestimonyStats, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.TestimonyStats{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var s models.TestimonyStats
	err = conn.QueryRow(ctx, `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE is_approved),
               COUNT(*) FILTER (WHERE NOT is_approved)
        FROM testimonies
    `).Scan(&s.Total, &s.Approved, &s.Pending)
	if err != nil {
		return models.TestimonyStats{}, fmt.Errorf("count testimonies: %w", err)
	}
	return s, nil
}
