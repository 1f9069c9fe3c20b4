// Package tokens issues role-scoped media-plane credentials for rooms.
package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aura-classroom/backend/internal/models"
)

// EventParticipantJoined is emitted the first time a participant takes a credential.
const EventParticipantJoined = "participant_joined"

const (
	minTTL     = time.Minute
	maxTTL     = time.Hour
	defaultTTL = time.Hour
)

// RoomLoader loads a room.
type RoomLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

// UserLoader loads a user.
type UserLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ParticipantRecorder records non-owner joins.
type ParticipantRecorder interface {
	Upsert(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
}

// Minter signs a grant into a credential token.
type Minter interface {
	Mint(g models.Grant) (string, error)
}

// Notifier fans room events out to connected clients.
type Notifier interface {
	NotifyRoom(roomID uuid.UUID, event string, payload interface{})
}

// Issuer builds and signs credentials.
type Issuer struct {
	rooms        RoomLoader
	users        UserLoader
	participants ParticipantRecorder
	minter       Minter
	notifier     Notifier
	url          string
	ttl          time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewIssuer creates an issuer. url is handed to clients with the token; ttl is clamped
// to [1m, 1h]. notifier may be nil.
func NewIssuer(rooms RoomLoader, users UserLoader, participants ParticipantRecorder, minter Minter, notifier Notifier,
	url string, ttl time.Duration, logger *zap.Logger) *Issuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{
		rooms:        rooms,
		users:        users,
		participants: participants,
		minter:       minter,
		notifier:     notifier,
		url:          url,
		ttl:          ClampTTL(ttl),
		now:          time.Now,
		logger:       logger,
	}
}

// ClampTTL bounds a credential lifetime to [1m, 1h]; zero means one hour.
func ClampTTL(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return defaultTTL
	case d < minTTL:
		return minTTL
	case d > maxTTL:
		return maxTTL
	default:
		return d
	}
}

// GrantFor derives the capability set of user in room.
func GrantFor(room *models.Room, user *models.User, ttl time.Duration) models.Grant {
	owner := room.IsOwner(user.ID)
	return models.Grant{
		Subject:        user.ID.String(),
		Name:           user.DisplayName(),
		Room:           room.ExternalName,
		CanPublish:     owner || room.OpenPublish,
		CanSubscribe:   true,
		CanPublishData: true,
		RoomAdmin:      owner,
		TTL:            ttl,
	}
}

// Issue returns a credential for requesterID to join roomID. Non-owners are recorded as
// participants; repeating the call never fails on that account.
func (i *Issuer) Issue(ctx context.Context, roomID, requesterID uuid.UUID) (*models.Credential, error) {
	var (
		room *models.Room
		user *models.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		room, err = i.rooms.GetByID(gctx, roomID)
		return err
	})
	g.Go(func() error {
		var err error
		user, err = i.users.GetByID(gctx, requesterID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	grant := GrantFor(room, user, i.ttl)
	token, err := i.minter.Mint(grant)
	if err != nil {
		return nil, fmt.Errorf("mint credential: %w", err)
	}
	if !grant.RoomAdmin {
		created, err := i.participants.Upsert(ctx, room.ID, user.ID)
		if err != nil {
			return nil, err
		}
		if created && i.notifier != nil {
			i.notifier.NotifyRoom(room.ID, EventParticipantJoined, map[string]interface{}{"user_id": user.ID, "name": grant.Name})
		}
	}
	i.logger.Debug("credential issued",
		zap.String("room_id", room.ID.String()),
		zap.String("user_id", user.ID.String()),
		zap.Bool("room_admin", grant.RoomAdmin),
		zap.Bool("can_publish", grant.CanPublish))

	cred := &models.Credential{
		Token:      token,
		URL:        i.url,
		RoomName:   room.ExternalName,
		IsOwner:    grant.RoomAdmin,
		RoomStatus: room.Status,
		ExpiresAt:  i.now().Add(i.ttl).UTC(),
	}
	if room.RecordingStatus == models.RecordingStatusCompleted {
		cred.RecordingArtifactLocation = room.ArtifactLocation
	}
	return cred, nil
}
