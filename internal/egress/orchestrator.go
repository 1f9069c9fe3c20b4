// Package egress starts server-side recordings of live rooms, at most one per room.
package egress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/backend/internal/media"
	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/pkg/errs"
	"github.com/aura-classroom/backend/pkg/storage"
)

// ErrAlreadyRunning is returned when the room already has a recording in progress.
var ErrAlreadyRunning = errors.New("recording already running")

// JobStore persists the active job id with compare-and-swap semantics.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	SetActiveJob(ctx context.Context, roomID uuid.UUID, jobID string) (bool, error)
}

// Config is the recording destination and layout.
type Config struct {
	Layout     string
	PathPrefix string
	Sink       media.S3Sink
}

// Orchestrator starts recording jobs idempotently.
type Orchestrator struct {
	media  media.Client
	store  JobStore
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(mc media.Client, store JobStore, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Layout == "" {
		cfg.Layout = "speaker"
	}
	return &Orchestrator{media: mc, store: store, cfg: cfg, now: time.Now, logger: logger}
}

// StartRecording submits a recording job for room unless one is already running remotely
// or tracked on the row. The returned id is always the one stored on the row: a running
// job the row does not track yet is claimed, and ErrAlreadyRunning reports the job that
// was already there.
func (o *Orchestrator) StartRecording(ctx context.Context, room *models.Room) (string, error) {
	if room.HasActiveJob() {
		return *room.ActiveJobID, ErrAlreadyRunning
	}
	jobs, err := o.media.ListJobs(ctx, room.ExternalName)
	if err != nil {
		return "", fmt.Errorf("list recording jobs: %w: %w", errs.ErrUpstream, err)
	}
	for _, j := range jobs {
		if j.State.Terminal() {
			continue
		}
		o.logger.Info("recording already running",
			zap.String("room_id", room.ID.String()),
			zap.String("egress_id", j.JobID),
			zap.String("state", string(j.State)))
		id, err := o.track(ctx, room, j.JobID)
		if err != nil {
			return "", err
		}
		return id, ErrAlreadyRunning
	}

	out := media.OutputSpec{
		FilePath: storage.RecordingFilePath(o.cfg.PathPrefix, room.ExternalName, o.now()),
		Sink:     o.cfg.Sink,
	}
	jobID, err := o.media.StartRecordingJob(ctx, room.ExternalName, out, o.cfg.Layout)
	if err != nil {
		return "", fmt.Errorf("start recording job: %w: %w", errs.ErrUpstream, err)
	}

	id, err := o.track(ctx, room, jobID)
	if err != nil {
		return "", err
	}
	if id != jobID {
		o.logger.Warn("recording job lost the race to another start",
			zap.String("room_id", room.ID.String()),
			zap.String("egress_id", jobID),
			zap.String("tracked_egress_id", id))
		return id, ErrAlreadyRunning
	}
	o.logger.Info("recording started",
		zap.String("room_id", room.ID.String()),
		zap.String("egress_id", jobID),
		zap.String("filepath", out.FilePath))
	return jobID, nil
}

// track stores jobID on the row unless another job got there first, and returns the
// id the row ends up tracking.
func (o *Orchestrator) track(ctx context.Context, room *models.Room, jobID string) (string, error) {
	ok, err := o.store.SetActiveJob(ctx, room.ID, jobID)
	if err != nil {
		// A retried start finds the job through ListJobs and claims it.
		o.logger.Error("recording job id not persisted",
			zap.String("room_id", room.ID.String()), zap.String("egress_id", jobID), zap.Error(err))
		return "", err
	}
	if ok {
		return jobID, nil
	}
	current, err := o.store.GetByID(ctx, room.ID)
	if err != nil {
		return "", err
	}
	if !current.HasActiveJob() {
		return "", fmt.Errorf("%w: recording job %s is not tracked by the room", errs.ErrConflict, jobID)
	}
	return *current.ActiveJobID, nil
}
