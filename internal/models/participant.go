package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a non-owner's join record for a room (unique per room+user).
type Participant struct {
	RoomID   uuid.UUID `json:"room_id"`
	UserID   uuid.UUID `json:"user_id"`
	FullName string    `json:"full_name,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}
