package repositories

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/heartwise/backend/internal/db"
	"github.com/heartwise/backend/internal/models"
)

// PostgresRoomRepository persists live chat rooms and their messages.
type PostgresRoomRepository struct {
	pool db.Pool
}

// NewPostgresRoomRepository constructs a chat room repository backed by PostgreSQL.
func NewPostgresRoomRepository(pool db.Pool) *PostgresRoomRepository {
	return &PostgresRoomRepository{pool: pool}
}

// ListActive returns active rooms in creation order.
func (r *PostgresRoomRepository) ListActive(ctx context.Context) ([]models.ChatRoom, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, name, description, is_active, created_at
        FROM chat_rooms
        WHERE is_active
        ORDER BY created_at ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	rooms := []models.ChatRoom{}
	for rows.Next() {
		var room models.ChatRoom
		if err := rows.Scan(&room.ID, &room.Name, &room.Description, &room.IsActive, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

// Find loads a room by id.
func (r *PostgresRoomRepository) Find(ctx context.Context, id string) (models.ChatRoom, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.ChatRoom{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var room models.ChatRoom
	err = conn.QueryRow(ctx, `
        SELECT id, name, description, is_active, created_at
        FROM chat_rooms
        WHERE id = $1
    `, id).Scan(&room.ID, &room.Name, &room.Description, &room.IsActive, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ChatRoom{}, ErrNotFound
		}
		return models.ChatRoom{}, fmt.Errorf("select room: %w", err)
	}
	return room, nil
}

// Create stores a new active room.
func (r *PostgresRoomRepository) Create(ctx context.Context, room models.ChatRoom) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO chat_rooms (id, name, description, is_active, created_at)
        VALUES ($1, $2, $3, TRUE, $4)
    `, room.ID, room.Name, room.Description, room.CreatedAt); err != nil {
		if mapped := mapWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// Deactivate hides a room from listings and blocks new messages.
func (r *PostgresRoomRepository) Deactivate(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE chat_rooms SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedDefaults inserts rooms when the table is empty and reports how many were created.
func (r *PostgresRoomRepository) SeedDefaults(ctx context.Context, rooms []models.ChatRoom) (int, error) {
	created := 0
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var existing int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM chat_rooms`).Scan(&existing); err != nil {
			return fmt.Errorf("count rooms: %w", err)
		}
		if existing > 0 {
			return nil
		}
		for _, room := range rooms {
			if _, err := tx.Exec(ctx, `
                INSERT INTO chat_rooms (id, name, description, is_active, created_at)
                VALUES ($1, $2, $3, TRUE, $4)
            `, room.ID, room.Name, room.Description, room.CreatedAt); err != nil {
				return fmt.Errorf("insert default room %s: %w", room.Name, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// RecentMessages returns the last limit messages of a room in chronological order.
func (r *PostgresRoomRepository) RecentMessages(ctx context.Context, roomID string, limit int) ([]models.ChatMessageDetails, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT m.id, m.room_id, m.user_id, m.content, m.is_anonymous, m.created_at, `+authorColumns+`
        FROM chat_messages m
        JOIN users u ON u.id = m.user_id
        LEFT JOIN profiles p ON p.user_id = m.user_id
        WHERE m.room_id = $1
        ORDER BY m.created_at DESC
        LIMIT $2
    `, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	messages := []models.ChatMessageDetails{}
	for rows.Next() {
		var m models.ChatMessageDetails
		dest := append([]any{&m.ID, &m.RoomID, &m.UserID, &m.Content, &m.IsAnonymous, &m.CreatedAt}, authorDest(&m.Author)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

// AddMessage stores a chat message.
func (r *PostgresRoomRepository) AddMessage(ctx context.Context, m models.ChatMessage) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO chat_messages (id, room_id, user_id, content, is_anonymous, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, m.ID, m.RoomID, m.UserID, m.Content, m.IsAnonymous, m.CreatedAt); err != nil {
		if mapped := mapWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}
