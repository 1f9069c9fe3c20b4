// Package zego mints ZEGOCLOUD token04 credentials for classroom rooms.
package zego

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZEGOCLOUD/zego_server_assistant/token/go/src/token04"

	"github.com/aura-classroom/backend/internal/models"
)

// RtcRoomPayload is the payload for room-based token (live streaming). See ZEGOCLOUD token04 docs.
type RtcRoomPayload struct {
	RoomID       string      `json:"room_id"`
	Privilege    map[int]int `json:"privilege"`
	StreamIDList []string    `json:"stream_id_list,omitempty"`
}

// TokenMinter signs token04 credentials for one ZEGOCLOUD app.
type TokenMinter struct {
	appID        uint32
	serverSecret string
}

// NewTokenMinter validates the app credentials. serverSecret must be 32 characters.
func NewTokenMinter(appID uint32, serverSecret string) (*TokenMinter, error) {
	if appID == 0 || serverSecret == "" {
		return nil, fmt.Errorf("zego: app_id and server_secret required")
	}
	if len(serverSecret) != 32 {
		return nil, fmt.Errorf("zego: server_secret must be 32 characters")
	}
	return &TokenMinter{appID: appID, serverSecret: serverSecret}, nil
}

// Mint returns a token04 for g. Login is always granted; publishing follows g.CanPublish.
// token04 has no subscribe or data privilege, so those fields do not change the token.
func (m *TokenMinter) Mint(g models.Grant) (string, error) {
	payload := RtcRoomPayload{
		RoomID:    g.Room,
		Privilege: Privileges(g),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("zego: marshal payload: %w", err)
	}
	ttl := int64(g.TTL / time.Second)
	if ttl <= 0 {
		ttl = int64(time.Hour / time.Second)
	}
	token, err := token04.GenerateToken04(m.appID, g.Subject, m.serverSecret, ttl, string(payloadJSON))
	if err != nil {
		return "", fmt.Errorf("zego: generate token: %w", err)
	}
	return token, nil
}

// Privileges maps a grant onto the token04 privilege table.
func Privileges(g models.Grant) map[int]int {
	privilege := map[int]int{
		token04.PrivilegeKeyLogin:   token04.PrivilegeEnable,
		token04.PrivilegeKeyPublish: token04.PrivilegeDisable,
	}
	if g.CanPublish {
		privilege[token04.PrivilegeKeyPublish] = token04.PrivilegeEnable
	}
	return privilege
}
