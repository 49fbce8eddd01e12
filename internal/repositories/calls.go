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

// PostgresCallRepository persists video calls and their participants.
type PostgresCallRepository struct {
	pool db.Pool
}

// NewPostgresCallRepository constructs a video call repository backed by PostgreSQL.
func NewPostgresCallRepository(pool db.Pool) *PostgresCallRepository {
	return &PostgresCallRepository{pool: pool}
}

const callColumns = `c.id, c.room_id, c.host_user_id, c.title, c.description, c.meeting_url,
               c.scheduled_time, c.is_active, c.max_participants, c.current_participants, c.created_at`

func callDest(c *models.VideoCall) []any {
	return []any{&c.ID, &c.RoomID, &c.HostUserID, &c.Title, &c.Description, &c.MeetingURL,
		&c.ScheduledTime, &c.IsActive, &c.MaxParticipants, &c.CurrentParticipants, &c.CreatedAt}
}

// ListActive returns active calls newest first, limited to roomID when set.
func (r *PostgresCallRepository) ListActive(ctx context.Context, roomID string) ([]models.VideoCallDetails, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+callColumns+`, `+authorColumns+`
        FROM video_calls c
        JOIN users u ON u.id = c.host_user_id
        LEFT JOIN profiles p ON p.user_id = c.host_user_id
        WHERE c.is_active AND ($1 = '' OR c.room_id = $1)
        ORDER BY c.created_at DESC
    `, roomID)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	calls := []models.VideoCallDetails{}
	for rows.Next() {
		var c models.VideoCallDetails
		dest := append(callDest(&c.VideoCall), authorDest(&c.Host)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// Find loads a call by id.
func (r *PostgresCallRepository) Find(ctx context.Context, id string) (models.VideoCall, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.VideoCall{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var c models.VideoCall
	if err := conn.QueryRow(ctx, `SELECT `+callColumns+` FROM video_calls c WHERE c.id = $1`, id).Scan(callDest(&c)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VideoCall{}, ErrNotFound
		}
		return models.VideoCall{}, fmt.Errorf("select call: %w", err)
	}
	return c, nil
}

// Create stores a new active call with no participants.
func (r *PostgresCallRepository) Create(ctx context.Context, c models.VideoCall) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO video_calls (id, room_id, host_user_id, title, description, meeting_url,
                                 scheduled_time, is_active, max_participants, current_participants, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, 0, $9)
    `, c.ID, c.RoomID, c.HostUserID, c.Title, c.Description, c.MeetingURL, c.ScheduledTime, c.MaxParticipants, c.CreatedAt); err != nil {
		if mapped := mapWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// Join adds userID to an active call. Joining twice is reported through
// AlreadyJoined instead of a second participant row.
func (r *PostgresCallRepository) Join(ctx context.Context, callID, userID, participantID string, now time.Time) (models.JoinResult, error) {
	var result models.JoinResult
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			active           bool
			current, maximum int
		)
		err := tx.QueryRow(ctx, `
            SELECT meeting_url, is_active, current_participants, max_participants
            FROM video_calls
            WHERE id = $1
            FOR UPDATE
        `, callID).Scan(&result.MeetingURL, &active, &current, &maximum)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && !active) {
			return ErrCallInactive
		}
		if err != nil {
			return fmt.Errorf("lock call: %w", err)
		}

		var existing int
		if err := tx.QueryRow(ctx, `
            SELECT COUNT(*) FROM call_participants
            WHERE call_id = $1 AND user_id = $2 AND is_active
        `, callID, userID).Scan(&existing); err != nil {
			return fmt.Errorf("check participant: %w", err)
		}
		if existing > 0 {
			result.AlreadyJoined = true
			return nil
		}
		if current >= maximum {
			return ErrCallFull
		}

		if _, err := tx.Exec(ctx, `
            INSERT INTO call_participants (id, call_id, user_id, joined_at, is_active)
            VALUES ($1, $2, $3, $4, TRUE)
        `, participantID, callID, userID, now); err != nil {
			if mapped := mapWriteError(err); mapped != nil {
				return mapped
			}
			return fmt.Errorf("insert participant: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE video_calls SET current_participants = current_participants + 1 WHERE id = $1`, callID); err != nil {
			return fmt.Errorf("increment participants: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.JoinResult{}, err
	}
	return result, nil
}

// Leave marks the user's active participation as ended.
func (r *PostgresCallRepository) Leave(ctx context.Context, callID, userID string, now time.Time) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE call_participants
            SET is_active = FALSE, left_at = $3
            WHERE call_id = $1 AND user_id = $2 AND is_active
        `, callID, userID, now)
		if err != nil {
			return fmt.Errorf("leave call: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `
            UPDATE video_calls
            SET current_participants = GREATEST(current_participants - 1, 0)
            WHERE id = $1
        `, callID); err != nil {
			return fmt.Errorf("decrement participants: %w", err)
		}
		return nil
	})
}

// End deactivates a call and every participant still in it.
func (r *PostgresCallRepository) End(ctx context.Context, callID string, now time.Time) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE video_calls SET is_active = FALSE, current_participants = 0
            WHERE id = $1
        `, callID)
		if err != nil {
			return fmt.Errorf("end call: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `
            UPDATE call_participants SET is_active = FALSE, left_at = $2
            WHERE call_id = $1 AND is_active
        `, callID, now); err != nil {
			return fmt.Errorf("release participants: %w", err)
		}
		return nil
	})
}

// Participants returns the active participants of a call in join order.
func (r *PostgresCallRepository) Participants(ctx context.Context, callID string) ([]models.ParticipantDetails, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT cp.id, cp.call_id, cp.user_id, cp.joined_at, cp.left_at, cp.is_active, `+authorColumns+`
        FROM call_participants cp
        JOIN users u ON u.id = cp.user_id
        LEFT JOIN profiles p ON p.user_id = cp.user_id
        WHERE cp.call_id = $1 AND cp.is_active
        ORDER BY cp.joined_at ASC
    `, callID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	participants := []models.ParticipantDetails{}
	for rows.Next() {
		var p models.ParticipantDetails
		dest := append([]any{&p.ID, &p.CallID, &p.UserID, &p.JoinedAt, &p.LeftAt, &p.IsActive}, authorDest(&p.Author)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}
