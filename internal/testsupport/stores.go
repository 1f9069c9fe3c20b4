package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/pkg/errs"
)

// Users is an in-memory user lookup.
type Users struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

// NewUsers returns an empty user store.
func NewUsers() *Users {
	return &Users{users: map[uuid.UUID]*models.User{}}
}

// Add stores a user with the given name and role and returns it.
func (u *Users) Add(name string, role models.Role) *models.User {
	u.mu.Lock()
	defer u.mu.Unlock()
	user := &models.User{ID: uuid.New(), Email: fmt.Sprintf("%s@example.com", uuid.NewString()[:8]), FullName: name, Role: role, CreatedAt: time.Now()}
	u.users[user.ID] = user
	return user
}

func (u *Users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", errs.ErrNotFound)
	}
	c := *user
	return &c, nil
}

type participantKey struct{ room, user uuid.UUID }

// Participants is an in-memory room_participants table keyed by (room, user).
type Participants struct {
	mu   sync.Mutex
	rows map[participantKey]time.Time

	// Rooms, when set, backs capacity and status checks in Register.
	Rooms *RoomStore
}

// NewParticipants returns an empty participant store.
func NewParticipants(rooms *RoomStore) *Participants {
	return &Participants{rows: map[participantKey]time.Time{}, Rooms: rooms}
}

func (p *Participants) Upsert(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := participantKey{roomID, userID}
	if _, ok := p.rows[k]; ok {
		return false, nil
	}
	p.rows[k] = time.Now()
	return true, nil
}

func (p *Participants) Register(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	room, err := p.Rooms.GetByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if room.Status == models.RoomStatusEnded {
		return false, fmt.Errorf("register: %w: room has ended", errs.ErrConflict)
	}
	k := participantKey{roomID, userID}
	if _, ok := p.rows[k]; ok {
		return false, nil
	}
	if p.countLocked(roomID) >= room.MaxParticipants {
		return false, fmt.Errorf("register: %w: room is full", errs.ErrConflict)
	}
	p.rows[k] = time.Now()
	return true, nil
}

func (p *Participants) Unregister(_ context.Context, roomID, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := participantKey{roomID, userID}
	if _, ok := p.rows[k]; !ok {
		return fmt.Errorf("unregister: %w", errs.ErrNotFound)
	}
	delete(p.rows, k)
	return nil
}

func (p *Participants) Exists(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.rows[participantKey{roomID, userID}]
	return ok, nil
}

func (p *Participants) ListByRoom(_ context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := []models.Participant{}
	for k, at := range p.rows {
		if k.room == roomID {
			list = append(list, models.Participant{RoomID: k.room, UserID: k.user, JoinedAt: at})
		}
	}
	return list, nil
}

// Count returns the number of rows for a room.
func (p *Participants) Count(roomID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countLocked(roomID)
}

func (p *Participants) countLocked(roomID uuid.UUID) int {
	n := 0
	for k := range p.rows {
		if k.room == roomID {
			n++
		}
	}
	return n
}

// Event is one recorded notification.
type Event struct {
	RoomID  uuid.UUID
	Name    string
	Payload interface{}
}

// Notifier records hub notifications.
type Notifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *Notifier) NotifyRoom(roomID uuid.UUID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Event{RoomID: roomID, Name: event, Payload: payload})
}

// Names returns the recorded event names in order.
func (n *Notifier) Names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Name)
	}
	return out
}
