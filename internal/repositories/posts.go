package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/heartwise/backend/internal/db"
	"github.com/heartwise/backend/internal/models"
)

// PostgresPostRepository persists community posts with their comments and reactions.
type PostgresPostRepository struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresPostRepository constructs a post repository backed by PostgreSQL.
func NewPostgresPostRepository(pool db.Pool) *PostgresPostRepository {
	return &PostgresPostRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

const postDetailsSelect = `
        SELECT po.id, po.user_id, po.title, po.content, po.category, po.is_anonymous,
               po.likes, po.dislikes, po.image_key, po.image_url, po.created_at,
               ` + authorColumns + `,
               (SELECT re.reaction FROM reactions re WHERE re.post_id = po.id AND re.user_id = $1),
               (SELECT COUNT(*) FROM comments c WHERE c.post_id = po.id)
        FROM posts po
        JOIN users u ON u.id = po.user_id
        LEFT JOIN profiles p ON p.user_id = po.user_id`

func scanPostDetails(row rowScanner) (models.PostDetails, error) {
	var d models.PostDetails
	dest := []any{
		&d.ID, &d.UserID, &d.Title, &d.Content, &d.Category, &d.IsAnonymous,
		&d.Likes, &d.Dislikes, &d.ImageKey, &d.ImageURL, &d.CreatedAt,
	}
	dest = append(dest, authorDest(&d.Author)...)
	dest = append(dest, &d.UserReaction, &d.CommentCount)
	if err := row.Scan(dest...); err != nil {
		return models.PostDetails{}, err
	}
	return d, nil
}

// List returns up to limit newest posts, optionally filtered by category. The
// viewer's own reaction is included when viewerID is set.
func (r *PostgresPostRepository) List(ctx context.Context, category, viewerID string, limit int) ([]models.PostDetails, error) {
	query := postDetailsSelect
	args := []any{viewerID}
	if category != "" && category != "all" {
		query += ` WHERE po.category = $2`
		args = append(args, category)
	}
	query += fmt.Sprintf(` ORDER BY po.created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)
	return r.queryDetails(ctx, query, args...)
}

// ListAll returns every post newest first for moderation.
func (r *PostgresPostRepository) ListAll(ctx context.Context) ([]models.PostDetails, error) {
	return r.queryDetails(ctx, postDetailsSelect+` ORDER BY po.created_at DESC`, "")
}

func (r *PostgresPostRepository) queryDetails(ctx context.Context, query string, args ...any) ([]models.PostDetails, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []models.PostDetails{}
	for rows.Next() {
		d, err := scanPostDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// Create stores a new post with zeroed counters.
func (r *PostgresPostRepository) Create(ctx context.Context, post models.Post) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO posts (id, user_id, title, content, category, is_anonymous, likes, dislikes, image_key, image_url, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8, $9)
    `, post.ID, post.UserID, post.Title, post.Content, post.Category, post.IsAnonymous, post.ImageKey, post.ImageURL, post.CreatedAt)
	if err != nil {
		if mapped := mapWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// Find loads a single post.
func (r *PostgresPostRepository) Find(ctx context.Context, id string) (models.Post, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Post{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var p models.Post
	err = conn.QueryRow(ctx, `
        SELECT id, user_id, title, content, category, is_anonymous, likes, dislikes, image_key, image_url, created_at
        FROM posts
        WHERE id = $1
    `, id).Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.Category, &p.IsAnonymous, &p.Likes, &p.Dislikes, &p.ImageKey, &p.ImageURL, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, fmt.Errorf("select post: %w", err)
	}
	return p, nil
}

// ToggleReaction applies a like or dislike from userID to the post. Repeating
// the current reaction removes it and a different one replaces it. The post
// row is locked for the duration so counters stay consistent with the
// reactions table.
func (r *PostgresPostRepository) ToggleReaction(ctx context.Context, postID, userID, reaction string) (models.ReactionResult, error) {
	var result models.ReactionResult
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var likes, dislikes int
		err := tx.QueryRow(ctx, `SELECT likes, dislikes FROM posts WHERE id = $1 FOR UPDATE`, postID).Scan(&likes, &dislikes)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock post: %w", err)
		}

		var current string
		err = tx.QueryRow(ctx, `SELECT reaction FROM reactions WHERE post_id = $1 AND user_id = $2`, postID, userID).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("select reaction: %w", err)
		}

		change := models.ResolveReaction(current, reaction)
		switch {
		case change.InsertNeeded:
			_, err = tx.Exec(ctx, `
                INSERT INTO reactions (id, post_id, user_id, reaction, created_at)
                VALUES ($1, $2, $3, $4, $5)
            `, uuid.NewString(), postID, userID, change.Next, r.now())
		case change.DeleteNeeded:
			_, err = tx.Exec(ctx, `DELETE FROM reactions WHERE post_id = $1 AND user_id = $2`, postID, userID)
		case change.UpdateNeeded:
			_, err = tx.Exec(ctx, `UPDATE reactions SET reaction = $3 WHERE post_id = $1 AND user_id = $2`, postID, userID, change.Next)
		}
		if err != nil {
			if mapped := mapWriteError(err); mapped != nil {
				return mapped
			}
			return fmt.Errorf("write reaction: %w", err)
		}

		likes = models.ClampCount(likes + change.LikeDelta)
		dislikes = models.ClampCount(dislikes + change.DislikeDelta)
		if _, err := tx.Exec(ctx, `UPDATE posts SET likes = $2, dislikes = $3 WHERE id = $1`, postID, likes, dislikes); err != nil {
			return fmt.Errorf("update post counters: %w", err)
		}

		result = models.ReactionResult{Likes: likes, Dislikes: dislikes}
		if change.Next != "" {
			next := change.Next
			result.UserReaction = &next
		}
		return nil
	})
	if err != nil {
		return models.ReactionResult{}, err
	}
	return result, nil
}

// ListComments returns a post's comments, newest first.
func (r *PostgresPostRepository) ListComments(ctx context.Context, postID string) ([]models.CommentDetails, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT c.id, c.post_id, c.user_id, c.content, c.is_anonymous, c.created_at, `+authorColumns+`
        FROM comments c
        JOIN users u ON u.id = c.user_id
        LEFT JOIN profiles p ON p.user_id = c.user_id
        WHERE c.post_id = $1
        ORDER BY c.created_at DESC
    `, postID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := []models.CommentDetails{}
	for rows.Next() {
		var c models.CommentDetails
		dest := append([]any{&c.ID, &c.PostID, &c.UserID, &c.Content, &c.IsAnonymous, &c.CreatedAt}, authorDest(&c.Author)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// AddComment stores a comment. A missing post yields ErrNotFound.
func (r *PostgresPostRepository) AddComment(ctx context.Context, c models.Comment) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO comments (id, post_id, user_id, content, is_anonymous, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, c.ID, c.PostID, c.UserID, c.Content, c.IsAnonymous, c.CreatedAt)
	if err != nil {
		if mapped := mapWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// Delete removes a post together with its reactions and comments and returns
// the storage key of its image, if any.
func (r *PostgresPostRepository) Delete(ctx context.Context, id string) (*string, error) {
	var imageKey *string
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM reactions WHERE post_id = $1`, id); err != nil {
			return fmt.Errorf("delete reactions: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM comments WHERE post_id = $1`, id); err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		err := tx.QueryRow(ctx, `DELETE FROM posts WHERE id = $1 RETURNING image_key`, id).Scan(&imageKey)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("delete post: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return imageKey, nil
}
