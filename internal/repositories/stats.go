package repositories

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heartwise/backend/internal/db"
	"github.com/heartwise/backend/internal/models"
)

// PostgresStatsRepository computes dashboard counters.
type PostgresStatsRepository struct {
	pool db.Pool
}

// NewPostgresStatsRepository constructs a stats repository backed by PostgreSQL.
func NewPostgresStatsRepository(pool db.Pool) *PostgresStatsRepository {
	return &PostgresStatsRepository{pool: pool}
}

// AdminStats runs each count on its own pooled connection concurrently.
// Recent counters include rows created at or after since.
func (r *PostgresStatsRepository) AdminStats(ctx context.Context, since time.Time) (models.AdminStats, error) {
	var stats models.AdminStats
	counts := []struct {
		dest  *int
		query string
		args  []any
	}{
		{&stats.TotalUsers, `SELECT COUNT(*) FROM users`, nil},
		{&stats.TotalPosts, `SELECT COUNT(*) FROM posts`, nil},
		{&stats.TotalComments, `SELECT COUNT(*) FROM comments`, nil},
		{&stats.TotalReactions, `SELECT COUNT(*) FROM reactions`, nil},
		{&stats.TotalMessages, `SELECT COUNT(*) FROM messages`, nil},
		{&stats.TotalConversations, `SELECT COUNT(*) FROM conversations`, nil},
		{&stats.RecentPosts, `SELECT COUNT(*) FROM posts WHERE created_at >= $1`, []any{since}},
		{&stats.RecentComments, `SELECT COUNT(*) FROM comments WHERE created_at >= $1`, []any{since}},
		{&stats.UnreadNotifications, `SELECT COUNT(*) FROM admin_notifications WHERE NOT is_read`, nil},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, c := range counts {
		g.Go(func() error {
			conn, err := r.pool.Acquire(gctx)
			if err != nil {
				return fmt.Errorf("acquire connection: %w", err)
			}
			defer conn.Release()

			if err := conn.QueryRow(gctx, c.query, c.args...).Scan(c.dest); err != nil {
				return fmt.Errorf("count %q: %w", c.query, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.AdminStats{}, err
	}
	return stats, nil
}
