package participants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/pkg/errs"
)

// Repository handles room_participants persistence.
type Repository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewRepository creates a participant repository. timeout bounds every statement.
func NewRepository(pool *pgxpool.Pool, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Repository{pool: pool, timeout: timeout}
}

// Upsert records that userID joined roomID. It reports whether a row was created;
// repeating it is a no-op.
func (r *Repository) Upsert(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	const q = `INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("upsert participant: %w: %w", errs.ErrUpstream, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Register adds userID to a room that has not ended and still has capacity.
// The room row is locked for the duration so concurrent registrations cannot overfill it.
func (r *Repository) Register(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	created := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		var capacity int
		err := tx.QueryRow(ctx, `SELECT status, max_participants FROM rooms WHERE id = $1 FOR UPDATE`, roomID).
			Scan(&status, &capacity)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("room %s: %w", roomID, errs.ErrNotFound)
			}
			return err
		}
		if models.RoomStatus(status) == models.RoomStatusEnded {
			return fmt.Errorf("register: %w: room has ended", errs.ErrConflict)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM room_participants WHERE room_id = $1 AND user_id = $2)`,
			roomID, userID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM room_participants WHERE room_id = $1`, roomID).Scan(&count); err != nil {
			return err
		}
		if count >= capacity {
			return fmt.Errorf("register: %w: room is full", errs.ErrConflict)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2)`, roomID, userID); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrConflict) {
			return false, err
		}
		return false, fmt.Errorf("register participant: %w: %w", errs.ErrUpstream, err)
	}
	return created, nil
}

// Unregister removes the registration, or returns errs.ErrNotFound.
func (r *Repository) Unregister(ctx context.Context, roomID, userID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	tag, err := r.pool.Exec(ctx, `DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return fmt.Errorf("unregister participant: %w: %w", errs.ErrUpstream, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registration: %w", errs.ErrNotFound)
	}
	return nil
}

// Exists reports whether userID is registered in roomID.
func (r *Repository) Exists(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM room_participants WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("participant exists: %w: %w", errs.ErrUpstream, err)
	}
	return ok, nil
}

// ListByRoom returns the room's participants with their names, earliest first.
func (r *Repository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	const q = `SELECT p.room_id, p.user_id, u.full_name, p.joined_at
		FROM room_participants p JOIN users u ON u.id = p.user_id
		WHERE p.room_id = $1 ORDER BY p.joined_at`
	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w: %w", errs.ErrUpstream, err)
	}
	defer rows.Close()
	list := []models.Participant{}
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.FullName, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w: %w", errs.ErrUpstream, err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w: %w", errs.ErrUpstream, err)
	}
	return list, nil
}
