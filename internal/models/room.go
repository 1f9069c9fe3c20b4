package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the lifecycle status of a classroom session.
type RoomStatus string

const (
	RoomStatusDraft     RoomStatus = "DRAFT"
	RoomStatusScheduled RoomStatus = "SCHEDULED"
	RoomStatusLive      RoomStatus = "LIVE"
	RoomStatusEnded     RoomStatus = "ENDED"
)

// RecordingStatus is the recording sub-state of a room.
type RecordingStatus string

const (
	RecordingStatusNone       RecordingStatus = "NONE"
	RecordingStatusRecording  RecordingStatus = "RECORDING"
	RecordingStatusProcessing RecordingStatus = "PROCESSING"
	RecordingStatusCompleted  RecordingStatus = "COMPLETED"
	RecordingStatusFailed     RecordingStatus = "FAILED"
)

// DefaultMaxParticipants is used when a room is created without a capacity.
const DefaultMaxParticipants = 100

// Room is one teaching session and its remote counterpart.
type Room struct {
	ID                uuid.UUID       `json:"id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	OwnerID           uuid.UUID       `json:"owner_id"`
	ExternalName      string          `json:"external_name"`
	Status            RoomStatus      `json:"status"`
	RecordingStatus   RecordingStatus `json:"recording_status"`
	ActiveJobID       *string         `json:"active_job_id,omitempty"`
	CompletedJobID    *string         `json:"completed_job_id,omitempty"`
	ScheduledAt       *time.Time      `json:"scheduled_at,omitempty"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	EndedAt           *time.Time      `json:"ended_at,omitempty"`
	MaxParticipants   int             `json:"max_participants"`
	OpenPublish       bool            `json:"open_publish"`
	RecordingEnabled  bool            `json:"recording_enabled"`
	ArtifactLocation  *string         `json:"artifact_location,omitempty"`
	ArtifactSizeBytes *int64          `json:"artifact_size_bytes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// IsOwner reports whether userID owns the room.
func (r *Room) IsOwner(userID uuid.UUID) bool {
	return r.OwnerID == userID
}

// HasActiveJob reports whether a recording job is tracked on the room.
func (r *Room) HasActiveJob() bool {
	return r.ActiveJobID != nil && *r.ActiveJobID != ""
}

// Terminal reports whether no further status transition is possible.
func (s RoomStatus) Terminal() bool {
	return s == RoomStatusEnded
}

// CanTransitionTo reports whether moving from s to next respects the lifecycle order
// DRAFT -> SCHEDULED -> LIVE -> ENDED. Draft and scheduled rooms may go live directly
// and any non-terminal room may be ended.
func (s RoomStatus) CanTransitionTo(next RoomStatus) bool {
	switch s {
	case RoomStatusDraft:
		return next == RoomStatusScheduled || next == RoomStatusLive || next == RoomStatusEnded
	case RoomStatusScheduled:
		return next == RoomStatusScheduled || next == RoomStatusLive || next == RoomStatusEnded
	case RoomStatusLive:
		return next == RoomStatusEnded
	default:
		return false
	}
}

// Terminal reports whether the recording has reached a final outcome.
func (s RecordingStatus) Terminal() bool {
	return s == RecordingStatusCompleted || s == RecordingStatusFailed
}

// RecordingOutcome is the final result reported for a recording job.
type RecordingOutcome struct {
	JobID    string
	Location string // empty when the job produced no output
}

// Status maps the outcome to the terminal recording status.
func (o RecordingOutcome) Status() RecordingStatus {
	if o.Location == "" {
		return RecordingStatusFailed
	}
	return RecordingStatusCompleted
}
