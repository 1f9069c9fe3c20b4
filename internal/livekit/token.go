package livekit

import (
	"fmt"

	"github.com/livekit/protocol/auth"

	"github.com/aura-classroom/backend/internal/models"
)

// TokenMinter signs LiveKit access tokens.
type TokenMinter struct {
	apiKey    string
	apiSecret string
}

// NewTokenMinter creates a minter for the given API key pair.
func NewTokenMinter(apiKey, apiSecret string) *TokenMinter {
	return &TokenMinter{apiKey: apiKey, apiSecret: apiSecret}
}

// Mint returns a signed access token carrying g as its video grant.
func (m *TokenMinter) Mint(g models.Grant) (string, error) {
	if m.apiKey == "" || m.apiSecret == "" {
		return "", fmt.Errorf("livekit: api key and secret required")
	}
	grant := &auth.VideoGrant{
		RoomJoin:  true,
		Room:      g.Room,
		RoomAdmin: g.RoomAdmin,
	}
	grant.SetCanPublish(g.CanPublish)
	grant.SetCanSubscribe(g.CanSubscribe)
	grant.SetCanPublishData(g.CanPublishData)

	at := auth.NewAccessToken(m.apiKey, m.apiSecret).
		SetVideoGrant(grant).
		SetIdentity(g.Subject).
		SetName(g.Name).
		SetValidFor(g.TTL)
	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("livekit: sign token: %w", err)
	}
	return token, nil
}
