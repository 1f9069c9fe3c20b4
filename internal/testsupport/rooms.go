// Package testsupport provides in-memory stand-ins for the stores and the media plane.
package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/pkg/errs"
)

// RoomStore mirrors the conditional updates of rooms.Repository in memory.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*models.Room

	// Fail, when set, is returned by every call.
	Fail error
	// Writes counts successful mutations.
	Writes int
}

// NewRoomStore returns an empty store.
func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[uuid.UUID]*models.Room)}
}

func clone(m *models.Room) *models.Room {
	c := *m
	if m.ActiveJobID != nil {
		v := *m.ActiveJobID
		c.ActiveJobID = &v
	}
	if m.CompletedJobID != nil {
		v := *m.CompletedJobID
		c.CompletedJobID = &v
	}
	if m.ArtifactLocation != nil {
		v := *m.ArtifactLocation
		c.ArtifactLocation = &v
	}
	if m.ArtifactSizeBytes != nil {
		v := *m.ArtifactSizeBytes
		c.ArtifactSizeBytes = &v
	}
	return &c
}

func conflict(op string) error {
	return fmt.Errorf("%s: %w: room changed concurrently", op, errs.ErrConflict)
}

// Put stores m as-is, for seeding.
func (s *RoomStore) Put(m *models.Room) *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = models.RoomStatusDraft
	}
	if m.RecordingStatus == "" {
		m.RecordingStatus = models.RecordingStatusNone
	}
	if m.MaxParticipants == 0 {
		m.MaxParticipants = models.DefaultMaxParticipants
	}
	if m.ExternalName == "" {
		m.ExternalName = "room-" + m.ID.String()[:8]
	}
	s.rooms[m.ID] = clone(m)
	return clone(m)
}

// Snapshot returns a copy of the stored room, or nil.
func (s *RoomStore) Snapshot(id uuid.UUID) *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.rooms[id]; ok {
		return clone(m)
	}
	return nil
}

func (s *RoomStore) Create(_ context.Context, m *models.Room) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	for _, r := range s.rooms {
		if r.ExternalName == m.ExternalName {
			return nil, fmt.Errorf("create room: %w: external name taken", errs.ErrConflict)
		}
	}
	c := clone(m)
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	s.rooms[c.ID] = c
	s.Writes++
	return clone(c), nil
}

func (s *RoomStore) GetByID(_ context.Context, id uuid.UUID) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	m, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, errs.ErrNotFound)
	}
	return clone(m), nil
}

func (s *RoomStore) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	list := []models.Room{}
	for _, m := range s.rooms {
		if m.OwnerID == ownerID {
			list = append(list, *clone(m))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (s *RoomStore) Schedule(_ context.Context, id uuid.UUID, observed models.RoomStatus, at time.Time) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	m, ok := s.rooms[id]
	if !ok || m.Status != observed {
		return nil, conflict("schedule room")
	}
	m.Status = models.RoomStatusScheduled
	m.ScheduledAt = &at
	s.Writes++
	return clone(m), nil
}

func (s *RoomStore) MarkLive(_ context.Context, id uuid.UUID, observed models.RoomStatus, startedAt time.Time) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	m, ok := s.rooms[id]
	if !ok || m.Status != observed {
		return nil, conflict("mark room live")
	}
	m.Status = models.RoomStatusLive
	m.StartedAt = &startedAt
	if m.ActiveJobID != nil {
		m.RecordingStatus = models.RecordingStatusRecording
	}
	s.Writes++
	return clone(m), nil
}

func (s *RoomStore) MarkEnded(_ context.Context, id uuid.UUID, endedAt time.Time) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	m, ok := s.rooms[id]
	if !ok || m.Status == models.RoomStatusEnded {
		return nil, conflict("mark room ended")
	}
	m.Status = models.RoomStatusEnded
	if m.EndedAt == nil {
		m.EndedAt = &endedAt
	}
	if m.RecordingStatus == models.RecordingStatusRecording {
		m.RecordingStatus = models.RecordingStatusProcessing
	}
	s.Writes++
	return clone(m), nil
}

func (s *RoomStore) SetActiveJob(_ context.Context, id uuid.UUID, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return false, s.Fail
	}
	m, ok := s.rooms[id]
	if !ok || m.ActiveJobID != nil {
		return false, nil
	}
	for _, other := range s.rooms {
		if other.ActiveJobID != nil && *other.ActiveJobID == jobID {
			return false, nil
		}
	}
	m.ActiveJobID = &jobID
	m.RecordingStatus = models.RecordingStatusRecording
	s.Writes++
	return true, nil
}

func (s *RoomStore) CompleteRecording(_ context.Context, out models.RecordingOutcome) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	for _, m := range s.rooms {
		if m.ActiveJobID == nil || *m.ActiveJobID != out.JobID {
			continue
		}
		m.RecordingStatus = out.Status()
		m.ArtifactLocation = nil
		if out.Location != "" {
			loc := out.Location
			m.ArtifactLocation = &loc
		}
		m.ArtifactSizeBytes = nil
		m.Status = models.RoomStatusEnded
		if m.EndedAt == nil {
			now := time.Now().UTC()
			m.EndedAt = &now
		}
		m.CompletedJobID = m.ActiveJobID
		m.ActiveJobID = nil
		s.Writes++
		return clone(m), nil
	}
	return nil, nil
}

func (s *RoomStore) SetArtifactSize(_ context.Context, id uuid.UUID, location string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	m, ok := s.rooms[id]
	if !ok || m.ArtifactLocation == nil || *m.ArtifactLocation != location {
		return nil
	}
	m.ArtifactSizeBytes = &size
	s.Writes++
	return nil
}
