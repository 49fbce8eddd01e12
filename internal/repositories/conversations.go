package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/heartwise/backend/internal/db"
	"github.com/heartwise/backend/internal/models"
)

// PostgresConversationRepository persists counseling conversations and their messages.
type PostgresConversationRepository struct {
	pool db.Pool
}

// NewPostgresConversationRepository constructs a conversation repository backed by PostgreSQL.
func NewPostgresConversationRepository(pool db.Pool) *PostgresConversationRepository {
	return &PostgresConversationRepository{pool: pool}
}

// ListActive returns the user's active conversations, newest first.
func (r *PostgresConversationRepository) ListActive(ctx context.Context, userID string) ([]models.Conversation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, user_id, title, is_active, created_at
        FROM conversations
        WHERE user_id = $1 AND is_active
        ORDER BY created_at DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return conversations, nil
}

// Create stores a new conversation.
func (r *PostgresConversationRepository) Create(ctx context.Context, c models.Conversation) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO conversations (id, user_id, title, is_active, created_at)
        VALUES ($1, $2, $3, TRUE, $4)
    `, c.ID, c.UserID, c.Title, c.CreatedAt)
	if err != nil {
		if mapped := mapWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// Find loads a conversation regardless of its active flag.
func (r *PostgresConversationRepository) Find(ctx context.Context, id string) (models.Conversation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var c models.Conversation
	err = conn.QueryRow(ctx, `
        SELECT id, user_id, title, is_active, created_at
        FROM conversations
        WHERE id = $1
    `, id).Scan(&c.ID, &c.UserID, &c.Title, &c.IsActive, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Conversation{}, ErrNotFound
		}
		return models.Conversation{}, fmt.Errorf("select conversation: %w", err)
	}
	return c, nil
}

// Rename changes a conversation's title.
func (r *PostgresConversationRepository) Rename(ctx context.Context, id, title string) error {
	return r.update(ctx, `UPDATE conversations SET title = $2 WHERE id = $1`, id, title)
}

// Deactivate soft deletes a conversation.
func (r *PostgresConversationRepository) Deactivate(ctx context.Context, id string) error {
	return r.update(ctx, `UPDATE conversations SET is_active = FALSE WHERE id = $1`, id)
}

func (r *PostgresConversationRepository) update(ctx context.Context, query string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Messages returns every message in the conversation, oldest first.
func (r *PostgresConversationRepository) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return r.queryMessages(ctx, `
        SELECT id, conversation_id, user_id, content, is_ai, biblical_references, created_at
        FROM messages
        WHERE conversation_id = $1
        ORDER BY created_at ASC, id ASC
    `, conversationID)
}

// RecentMessages returns the last limit messages of a conversation in chronological order.
func (r *PostgresConversationRepository) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	return r.queryMessages(ctx, `
        SELECT id, conversation_id, user_id, content, is_ai, biblical_references, created_at
        FROM (
            SELECT id, conversation_id, user_id, content, is_ai, biblical_references, created_at
            FROM messages
            WHERE conversation_id = $1
            ORDER BY created_at DESC, id DESC
            LIMIT $2
        ) recent
        ORDER BY created_at ASC, id ASC
    `, conversationID, limit)
}

func (r *PostgresConversationRepository) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Content, &m.IsAI, &m.BiblicalReferences, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// AddMessage appends a message to a conversation.
func (r *PostgresConversationRepository) AddMessage(ctx context.Context, m models.Message) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	refs := m.BiblicalReferences
	if refs == nil {
		refs = []string{}
	}
	_, err = conn.Exec(ctx, `
        INSERT INTO messages (id, conversation_id, user_id, content, is_ai, biblical_references, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, m.ID, m.ConversationID, m.UserID, m.Content, m.IsAI, refs, m.CreatedAt)
	if err != nil {
		if mapped := mapWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}
