package webhook

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/pkg/queue"
)

// Hub events emitted when a recording reaches a final outcome.
const (
	EventRecordingCompleted = "recording_completed"
	EventRecordingFailed    = "recording_failed"
)

// Outcome is what Handle did with a callback.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeUnknownJob Outcome = "unknown_job"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeMalformed  Outcome = "malformed"
	OutcomeRejected   Outcome = "rejected"
	OutcomeFailed     Outcome = "failed"
)

// Store applies a terminal recording outcome to the room tracking the job.
// It returns nil when no room tracks the job.
type Store interface {
	CompleteRecording(ctx context.Context, out models.RecordingOutcome) (*models.Room, error)
}

// ArtifactQueue schedules post-completion work on a recording artifact.
type ArtifactQueue interface {
	EnqueueArtifact(ctx context.Context, payload queue.ArtifactPayload) error
}

// Notifier fans room events out to connected clients.
type Notifier interface {
	NotifyRoom(roomID uuid.UUID, event string, payload interface{})
}

// Reconciler folds at-least-once, possibly reordered callbacks into room state.
type Reconciler struct {
	verifier *Verifier
	store    Store
	queue    ArtifactQueue
	notifier Notifier
	logger   *zap.Logger
}

// NewReconciler creates a reconciler. queue and notifier may be nil.
func NewReconciler(verifier *Verifier, store Store, q ArtifactQueue, notifier Notifier, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{verifier: verifier, store: store, queue: q, notifier: notifier, logger: logger}
}

// Handle verifies, parses and applies one callback. Malformed bodies return
// OutcomeMalformed with an errs.ErrMalformedEvent error; callers acknowledge them.
func (r *Reconciler) Handle(ctx context.Context, body []byte, authorization string) (Outcome, error) {
	if err := r.verifier.Verify(body, authorization); err != nil {
		r.logger.Warn("webhook rejected", zap.Error(err))
		return OutcomeRejected, err
	}
	ev, err := ParseEvent(body)
	if err != nil {
		r.logger.Warn("webhook dropped", zap.Error(err))
		return OutcomeMalformed, err
	}
	switch e := ev.(type) {
	case RecordingFinished:
		return r.apply(ctx, e)
	default:
		r.logger.Debug("webhook ignored", zap.String("event", ev.Kind()))
		return OutcomeIgnored, nil
	}
}

func (r *Reconciler) apply(ctx context.Context, e RecordingFinished) (Outcome, error) {
	out := models.RecordingOutcome{JobID: e.JobID}
	if !e.Failed {
		out.Location = e.Location
	}
	room, err := r.store.CompleteRecording(ctx, out)
	if err != nil {
		r.logger.Error("apply recording outcome failed", zap.String("egress_id", e.JobID), zap.Error(err))
		return OutcomeFailed, err
	}
	if room == nil {
		r.logger.Info("recording outcome for untracked job", zap.String("egress_id", e.JobID), zap.String("room", e.RoomName))
		return OutcomeUnknownJob, nil
	}

	r.logger.Info("recording outcome applied",
		zap.String("room_id", room.ID.String()),
		zap.String("egress_id", e.JobID),
		zap.String("recording_status", string(room.RecordingStatus)))

	event := EventRecordingCompleted
	if room.RecordingStatus != models.RecordingStatusCompleted {
		event = EventRecordingFailed
	}
	if r.notifier != nil {
		r.notifier.NotifyRoom(room.ID, event, map[string]interface{}{
			"room_id":           room.ID,
			"recording_status":  room.RecordingStatus,
			"artifact_location": room.ArtifactLocation,
		})
	}
	if r.queue != nil && room.RecordingStatus == models.RecordingStatusCompleted {
		err := r.queue.EnqueueArtifact(ctx, queue.ArtifactPayload{RoomID: room.ID, JobID: e.JobID, Location: out.Location})
		if err != nil {
			r.logger.Warn("enqueue artifact job failed", zap.String("room_id", room.ID.String()), zap.Error(err))
		}
	}
	return OutcomeApplied, nil
}

