package models

import "time"

// Grant is the capability set a credential carries. It is computed per request and never stored.
type Grant struct {
	Subject        string        `json:"subject"`
	Name           string        `json:"name"`
	Room           string        `json:"room"`
	CanPublish     bool          `json:"can_publish"`
	CanSubscribe   bool          `json:"can_subscribe"`
	CanPublishData bool          `json:"can_publish_data"`
	RoomAdmin      bool          `json:"room_admin"`
	TTL            time.Duration `json:"-"`
}

// Credential is returned to a client joining a room.
type Credential struct {
	Token                     string     `json:"token"`
	URL                       string     `json:"url"`
	RoomName                  string     `json:"room_name"`
	IsOwner                   bool       `json:"is_owner"`
	RoomStatus                RoomStatus `json:"room_status"`
	RecordingArtifactLocation *string    `json:"recording_artifact_location,omitempty"`
	ExpiresAt                 time.Time  `json:"expires_at"`
}
