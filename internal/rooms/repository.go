package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/pkg/errs"
)

const roomColumns = `id, title, description, owner_id, external_name, status, recording_status,
	active_job_id, completed_job_id, scheduled_at, started_at, ended_at, max_participants,
	open_publish, recording_enabled, artifact_location, artifact_size_bytes, created_at, updated_at`

// Repository handles room persistence. Every status or job-id change is a single
// conditional UPDATE so concurrent writers are serialized by the row.
type Repository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// Option configures a Repository.
type Option func(*Repository)

// WithTimeout bounds every statement.
func WithTimeout(d time.Duration) Option {
	return func(r *Repository) { r.timeout = d }
}

// NewRepository creates a room repository.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{pool: pool, timeout: 5 * time.Second}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Repository) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var m models.Room
	var status, recStatus string
	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.OwnerID, &m.ExternalName, &status, &recStatus,
		&m.ActiveJobID, &m.CompletedJobID, &m.ScheduledAt, &m.StartedAt, &m.EndedAt, &m.MaxParticipants,
		&m.OpenPublish, &m.RecordingEnabled, &m.ArtifactLocation, &m.ArtifactSizeBytes, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Status = models.RoomStatus(status)
	m.RecordingStatus = models.RecordingStatus(recStatus)
	return &m, nil
}

// Create inserts a room. ID, timestamps and defaults come back from the database.
func (r *Repository) Create(ctx context.Context, m *models.Room) (*models.Room, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	const q = `INSERT INTO rooms (id, title, description, owner_id, external_name, status, scheduled_at,
		max_participants, open_publish, recording_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + roomColumns
	id := m.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	out, err := scanRoom(r.pool.QueryRow(ctx, q, id, m.Title, m.Description, m.OwnerID, m.ExternalName,
		string(m.Status), m.ScheduledAt, m.MaxParticipants, m.OpenPublish, m.RecordingEnabled))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("create room: %w: external name taken", errs.ErrConflict)
		}
		return nil, fmt.Errorf("create room: %w: %w", errs.ErrUpstream, err)
	}
	return out, nil
}

// GetByID returns a room or errs.ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	const q = `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`
	m, err := scanRoom(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("load room: %w: %w", errs.ErrUpstream, err)
	}
	return m, nil
}

// ListByOwner returns the owner's rooms, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Room, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	const q = `SELECT ` + roomColumns + ` FROM rooms WHERE owner_id = $1 ORDER BY created_at DESC LIMIT 200`
	rows, err := r.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w: %w", errs.ErrUpstream, err)
	}
	defer rows.Close()
	list := []models.Room{}
	for rows.Next() {
		m, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w: %w", errs.ErrUpstream, err)
		}
		list = append(list, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rooms: %w: %w", errs.ErrUpstream, err)
	}
	return list, nil
}

// conditional runs an UPDATE ... RETURNING that may match no row, which is reported as errs.ErrConflict.
func (r *Repository) conditional(ctx context.Context, op, q string, args ...any) (*models.Room, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	m, err := scanRoom(r.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w: room changed concurrently", op, errs.ErrConflict)
		}
		return nil, fmt.Errorf("%s: %w: %w", op, errs.ErrUpstream, err)
	}
	return m, nil
}

// Schedule sets a new start time while the room is still in the observed status.
func (r *Repository) Schedule(ctx context.Context, id uuid.UUID, observed models.RoomStatus, at time.Time) (*models.Room, error) {
	const q = `UPDATE rooms SET status = 'SCHEDULED', scheduled_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + roomColumns
	return r.conditional(ctx, "schedule room", q, id, string(observed), at)
}

// MarkLive moves the room from the observed status to LIVE. The recording status
// becomes RECORDING when a job is already tracked on the row.
func (r *Repository) MarkLive(ctx context.Context, id uuid.UUID, observed models.RoomStatus, startedAt time.Time) (*models.Room, error) {
	const q = `UPDATE rooms SET status = 'LIVE', started_at = $3,
			recording_status = CASE WHEN active_job_id IS NOT NULL THEN 'RECORDING' ELSE recording_status END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + roomColumns
	return r.conditional(ctx, "mark room live", q, id, string(observed), startedAt)
}

// MarkEnded moves a non-terminal room to ENDED. A running recording becomes PROCESSING;
// the job id stays until the completion callback arrives.
func (r *Repository) MarkEnded(ctx context.Context, id uuid.UUID, endedAt time.Time) (*models.Room, error) {
	const q = `UPDATE rooms SET status = 'ENDED', ended_at = COALESCE(ended_at, $2),
			recording_status = CASE WHEN recording_status = 'RECORDING' THEN 'PROCESSING' ELSE recording_status END,
			updated_at = NOW()
		WHERE id = $1 AND status <> 'ENDED'
		RETURNING ` + roomColumns
	return r.conditional(ctx, "mark room ended", q, id, endedAt)
}

// SetActiveJob records jobID on the room only if no job is tracked yet.
// It reports false when another job won the race.
func (r *Repository) SetActiveJob(ctx context.Context, id uuid.UUID, jobID string) (bool, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	const q = `UPDATE rooms SET active_job_id = $2, recording_status = 'RECORDING', updated_at = NOW()
		WHERE id = $1 AND active_job_id IS NULL`
	tag, err := r.pool.Exec(ctx, q, id, jobID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("set active job: %w: %w", errs.ErrUpstream, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteRecording applies a terminal outcome to the room tracking out.JobID and
// returns it. When no room tracks the job (unknown or already applied) it returns nil, nil.
func (r *Repository) CompleteRecording(ctx context.Context, out models.RecordingOutcome) (*models.Room, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	const q = `UPDATE rooms SET recording_status = $2, artifact_location = $3, artifact_size_bytes = NULL,
			status = 'ENDED', ended_at = COALESCE(ended_at, NOW()),
			completed_job_id = active_job_id, active_job_id = NULL, updated_at = NOW()
		WHERE active_job_id = $1
		RETURNING ` + roomColumns
	var location *string
	if out.Location != "" {
		location = &out.Location
	}
	m, err := scanRoom(r.pool.QueryRow(ctx, q, out.JobID, string(out.Status()), location))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("complete recording: %w: %w", errs.ErrUpstream, err)
	}
	return m, nil
}

// SetArtifactSize stores the verified object size if the artifact location is unchanged.
func (r *Repository) SetArtifactSize(ctx context.Context, id uuid.UUID, location string, size int64) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	const q = `UPDATE rooms SET artifact_size_bytes = $3, updated_at = NOW()
		WHERE id = $1 AND artifact_location = $2`
	if _, err := r.pool.Exec(ctx, q, id, location, size); err != nil {
		return fmt.Errorf("set artifact size: %w: %w", errs.ErrUpstream, err)
	}
	return nil
}
