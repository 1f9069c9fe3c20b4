package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/backend/internal/egress"
	"github.com/aura-classroom/backend/internal/media"
	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/pkg/errs"
)

// Hub events emitted on status changes.
const (
	EventRoomLive  = "room_live"
	EventRoomEnded = "room_ended"
)

// Store is the room persistence the lifecycle needs.
type Store interface {
	Create(ctx context.Context, m *models.Room) (*models.Room, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Room, error)
	Schedule(ctx context.Context, id uuid.UUID, observed models.RoomStatus, at time.Time) (*models.Room, error)
	MarkLive(ctx context.Context, id uuid.UUID, observed models.RoomStatus, startedAt time.Time) (*models.Room, error)
	MarkEnded(ctx context.Context, id uuid.UUID, endedAt time.Time) (*models.Room, error)
}

// Recorder starts the room's recording job.
type Recorder interface {
	StartRecording(ctx context.Context, room *models.Room) (string, error)
}

// Notifier fans room events out to connected clients.
type Notifier interface {
	NotifyRoom(roomID uuid.UUID, event string, payload interface{})
}

// Config holds lifecycle settings.
type Config struct {
	EmptyTimeoutSec uint32
}

// CreateParams is the input for Create.
type CreateParams struct {
	Title            string
	Description      string
	StartsAt         *time.Time
	MaxParticipants  int
	OpenPublish      bool
	RecordingEnabled *bool
}

// StartResult is the outcome of Start. RecordingErr is set when the session went live
// but its recording could not be started.
type StartResult struct {
	Room           *models.Room `json:"room"`
	RecordingJobID string       `json:"recording_job_id,omitempty"`
	RecordingErr   error        `json:"-"`
}

// Service owns the room status state machine.
type Service struct {
	store    Store
	media    media.Client
	recorder Recorder
	notifier Notifier
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates the room lifecycle service. recorder and notifier may be nil.
func NewService(store Store, mc media.Client, recorder Recorder, notifier Notifier, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EmptyTimeoutSec == 0 {
		cfg.EmptyTimeoutSec = 600
	}
	return &Service{store: store, media: mc, recorder: recorder, notifier: notifier, cfg: cfg, now: time.Now, logger: logger}
}

// Create stores a new room owned by ownerID: SCHEDULED when a start time is given, DRAFT otherwise.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, p CreateParams) (*models.Room, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title required", errs.ErrInvalidInput)
	}
	if p.MaxParticipants < 0 {
		return nil, fmt.Errorf("%w: max_participants must be positive", errs.ErrInvalidInput)
	}
	m := &models.Room{
		ID:               uuid.New(),
		Title:            title,
		Description:      strings.TrimSpace(p.Description),
		OwnerID:          ownerID,
		Status:           models.RoomStatusDraft,
		RecordingStatus:  models.RecordingStatusNone,
		MaxParticipants:  p.MaxParticipants,
		OpenPublish:      p.OpenPublish,
		RecordingEnabled: true,
	}
	if m.MaxParticipants == 0 {
		m.MaxParticipants = models.DefaultMaxParticipants
	}
	if p.RecordingEnabled != nil {
		m.RecordingEnabled = *p.RecordingEnabled
	}
	if p.StartsAt != nil && !p.StartsAt.IsZero() {
		at := p.StartsAt.UTC()
		m.ScheduledAt = &at
		m.Status = models.RoomStatusScheduled
	}
	m.ExternalName = ExternalName(title, m.ID)

	room, err := s.store.Create(ctx, m)
	if err != nil {
		return nil, err
	}
	s.logger.Info("room created",
		zap.String("room_id", room.ID.String()),
		zap.String("external_name", room.ExternalName),
		zap.String("status", string(room.Status)))
	return room, nil
}

// Get returns a room.
func (s *Service) Get(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	return s.store.GetByID(ctx, roomID)
}

// ListMine returns the rooms owned by ownerID.
func (s *Service) ListMine(ctx context.Context, ownerID uuid.UUID) ([]models.Room, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// loadOwned loads the room and checks requesterID owns it.
func (s *Service) loadOwned(ctx context.Context, roomID, requesterID uuid.UUID) (*models.Room, error) {
	room, err := s.store.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsOwner(requesterID) {
		return nil, fmt.Errorf("%w: only the room owner can do this", errs.ErrForbidden)
	}
	return room, nil
}

// Schedule sets the start time of a DRAFT or SCHEDULED room.
func (s *Service) Schedule(ctx context.Context, roomID, requesterID uuid.UUID, at time.Time) (*models.Room, error) {
	if at.IsZero() || !at.After(s.now()) {
		return nil, fmt.Errorf("%w: start time must be in the future", errs.ErrInvalidInput)
	}
	room, err := s.loadOwned(ctx, roomID, requesterID)
	if err != nil {
		return nil, err
	}
	if !room.Status.CanTransitionTo(models.RoomStatusScheduled) {
		return nil, fmt.Errorf("%w: cannot schedule a %s room", errs.ErrConflict, room.Status)
	}
	return s.store.Schedule(ctx, room.ID, room.Status, at.UTC())
}

// Start opens the remote room, starts its recording when enabled and marks it LIVE.
// A recording failure does not prevent the session from going live; it is reported in
// StartResult.RecordingErr.
func (s *Service) Start(ctx context.Context, roomID, requesterID uuid.UUID) (*StartResult, error) {
	room, err := s.loadOwned(ctx, roomID, requesterID)
	if err != nil {
		return nil, err
	}
	switch room.Status {
	case models.RoomStatusLive:
		return nil, fmt.Errorf("%w: room is already live", errs.ErrConflict)
	case models.RoomStatusEnded:
		return nil, fmt.Errorf("%w: room has ended", errs.ErrConflict)
	}

	err = s.media.CreateRoom(ctx, room.ExternalName, s.cfg.EmptyTimeoutSec, uint32(room.MaxParticipants))
	if err != nil && !errors.Is(err, media.ErrRoomExists) {
		s.logger.Error("create remote room failed", zap.String("room_id", room.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("create remote room: %w: %w", errs.ErrUpstream, err)
	}

	res := &StartResult{}
	if room.RecordingEnabled && s.recorder != nil {
		jobID, err := s.recorder.StartRecording(ctx, room)
		switch {
		case err == nil, errors.Is(err, egress.ErrAlreadyRunning):
			res.RecordingJobID = jobID
		default:
			s.logger.Warn("recording not started", zap.String("room_id", room.ID.String()), zap.Error(err))
			res.RecordingErr = err
		}
	}

	updated, err := s.store.MarkLive(ctx, room.ID, room.Status, s.now().UTC())
	if err != nil {
		return nil, err
	}
	res.Room = updated
	s.logger.Info("room live",
		zap.String("room_id", updated.ID.String()),
		zap.String("recording_status", string(updated.RecordingStatus)))
	s.notify(updated.ID, EventRoomLive, updated)
	return res, nil
}

// End closes the session. Remote disposal is best effort; a running recording moves to
// PROCESSING and is completed by its callback.
func (s *Service) End(ctx context.Context, roomID, requesterID uuid.UUID) (*models.Room, error) {
	room, err := s.loadOwned(ctx, roomID, requesterID)
	if err != nil {
		return nil, err
	}
	if room.Status.Terminal() {
		return nil, fmt.Errorf("%w: room has already ended", errs.ErrConflict)
	}

	if err := s.media.DeleteRoom(ctx, room.ExternalName); err != nil {
		if errors.Is(err, media.ErrRoomNotFound) {
			s.logger.Debug("remote room already gone", zap.String("room", room.ExternalName))
		} else {
			s.logger.Warn("delete remote room failed", zap.String("room", room.ExternalName), zap.Error(err))
		}
	}

	updated, err := s.store.MarkEnded(ctx, room.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info("room ended",
		zap.String("room_id", updated.ID.String()),
		zap.String("recording_status", string(updated.RecordingStatus)))
	s.notify(updated.ID, EventRoomEnded, updated)
	return updated, nil
}

func (s *Service) notify(roomID uuid.UUID, event string, payload interface{}) {
	if s.notifier != nil {
		s.notifier.NotifyRoom(roomID, event, payload)
	}
}
