package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/heartwise/backend/internal/db"
	"github.com/heartwise/backend/internal/models"
)

// PostgresVerseRepository persists generated daily verses.
type PostgresVerseRepository struct {
	pool db.Pool
}

// NewPostgresVerseRepository constructs a verse repository backed by PostgreSQL.
func NewPostgresVerseRepository(pool db.Pool) *PostgresVerseRepository {
	return &PostgresVerseRepository{pool: pool}
}

const verseColumns = `id, verse, reference, reflection, topic, date, minute_key, is_ai_generated, created_at`

func (r *PostgresVerseRepository) findOne(ctx context.Context, query string, arg string) (models.DailyVerse, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.DailyVerse{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var v models.DailyVerse
	err = conn.QueryRow(ctx, query, arg).Scan(&v.ID, &v.Verse, &v.Reference, &v.Reflection, &v.Topic, &v.Date, &v.MinuteKey, &v.IsAIGenerated, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DailyVerse{}, ErrNotFound
		}
		return models.DailyVerse{}, fmt.Errorf("select verse: %w", err)
	}
	return v, nil
}

// LatestForDate returns the most recently created verse for date (YYYY-MM-DD).
func (r *PostgresVerseRepository) LatestForDate(ctx context.Context, date string) (models.DailyVerse, error) {
	return r.findOne(ctx, `
        SELECT `+verseColumns+`
        FROM daily_verses
        WHERE date = $1
        ORDER BY created_at DESC
        LIMIT 1
    `, date)
}

// FindByMinuteKey returns the verse generated for a schedule slot.
func (r *PostgresVerseRepository) FindByMinuteKey(ctx context.Context, key string) (models.DailyVerse, error) {
	return r.findOne(ctx, `SELECT `+verseColumns+` FROM daily_verses WHERE minute_key = $1`, key)
}

// Create stores a verse. A second verse for the same minute key yields ErrConflict.
func (r *PostgresVerseRepository) Create(ctx context.Context, v models.DailyVerse) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO daily_verses (id, verse, reference, reflection, topic, date, minute_key, is_ai_generated, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, v.ID, v.Verse, v.Reference, v.Reflection, v.Topic, v.Date, v.MinuteKey, v.IsAIGenerated, v.CreatedAt); err != nil {
		if mapped := mapWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert verse: %w", err)
	}
	return nil
}
