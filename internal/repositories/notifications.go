package repositories

import (
	"context"
	"fmt"

	"github.com/heartwise/backend/internal/db"
	"github.com/heartwise/backend/internal/models"
)

// PostgresNotificationRepository persists the moderator inbox.
type PostgresNotificationRepository struct {
	pool db.Pool
}

// NewPostgresNotificationRepository constructs a notification repository backed by PostgreSQL.
func NewPostgresNotificationRepository(pool db.Pool) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{pool: pool}
}

// Create stores an unread notification.
func (r *PostgresNotificationRepository) Create(ctx context.Context, n models.AdminNotification) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO admin_notifications (id, type, title, description, related_id, is_read, priority, created_at)
        VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
    `, n.ID, n.Type, n.Title, n.Description, n.RelatedID, n.Priority, n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List returns up to limit notifications, newest first.
func (r *PostgresNotificationRepository) List(ctx context.Context, limit int) ([]models.AdminNotification, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, type, title, description, related_id, is_read, priority, created_at
        FROM admin_notifications
        ORDER BY created_at DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.AdminNotification{}
	for rows.Next() {
		var n models.AdminNotification
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Description, &n.RelatedID, &n.IsRead, &n.Priority, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead flags one notification as read.
func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE admin_notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification and reports how many changed.
func (r *PostgresNotificationRepository) MarkAllRead(ctx context.Context) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE admin_notifications SET is_read = TRUE WHERE NOT is_read`)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}
