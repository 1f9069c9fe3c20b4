package testsupport

import (
	"context"
	"fmt"
	"sync"

	"github.com/aura-classroom/backend/internal/media"
)

// Media is a scripted media.Client. Submitted jobs show up as ACTIVE in ListJobs.
type Media struct {
	mu sync.Mutex

	Rooms   map[string]bool
	Jobs    map[string][]media.JobStatus
	Outputs []media.OutputSpec
	Layouts []string
	Deleted []string

	CreateErr error
	DeleteErr error
	ListErr   error
	StartErr  error

	next int
}

// NewMedia returns an empty media plane.
func NewMedia() *Media {
	return &Media{Rooms: map[string]bool{}, Jobs: map[string][]media.JobStatus{}}
}

var _ media.Client = (*Media)(nil)

func (m *Media) CreateRoom(_ context.Context, name string, _ uint32, _ uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if m.Rooms[name] {
		return media.ErrRoomExists
	}
	m.Rooms[name] = true
	return nil
}

func (m *Media) DeleteRoom(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if !m.Rooms[name] {
		return media.ErrRoomNotFound
	}
	delete(m.Rooms, name)
	m.Deleted = append(m.Deleted, name)
	return nil
}

func (m *Media) ListJobs(_ context.Context, roomName string) ([]media.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return append([]media.JobStatus(nil), m.Jobs[roomName]...), nil
}

func (m *Media) StartRecordingJob(_ context.Context, roomName string, out media.OutputSpec, layout string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return "", m.StartErr
	}
	m.next++
	id := fmt.Sprintf("EG_%d", m.next)
	m.Jobs[roomName] = append(m.Jobs[roomName], media.JobStatus{JobID: id, RoomName: roomName, State: media.JobActive})
	m.Outputs = append(m.Outputs, out)
	m.Layouts = append(m.Layouts, layout)
	return id, nil
}

// Submitted returns how many recording jobs were started.
func (m *Media) Submitted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Outputs)
}

// SetJobState changes the remote state of a job.
func (m *Media) SetJobState(roomName, jobID string, state media.JobState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, j := range m.Jobs[roomName] {
		if j.JobID == jobID {
			m.Jobs[roomName][i].State = state
		}
	}
}
