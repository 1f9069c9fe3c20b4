// Package recordings serves completed recording artifacts.
package recordings

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/backend/internal/middleware"
	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/pkg/errs"
	"github.com/aura-classroom/backend/pkg/response"
	"github.com/aura-classroom/backend/pkg/storage"
)

// RoomLoader loads the room that owns the artifact.
type RoomLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

// Registrations reports whether a user is registered for a room.
type Registrations interface {
	Exists(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
}

// Presigner issues time-limited GET links. *storage.S3 satisfies it.
type Presigner interface {
	Bucket() string
	PresignExpire() time.Duration
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}

// DownloadURL is the body of a successful download-url request.
type DownloadURL struct {
	URL       string `json:"download_url"`
	ExpiresIn int    `json:"expires_in"`
	SizeBytes *int64 `json:"size_bytes,omitempty"`
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	rooms         RoomLoader
	registrations Registrations
	s3            Presigner
	logger        *zap.Logger
}

// NewHandler creates a recordings handler. s3 may be nil, in which case downloads are unavailable.
func NewHandler(rooms RoomLoader, registrations Registrations, s3 Presigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{rooms: rooms, registrations: registrations, s3: s3, logger: logger}
}

// GenerateDownloadURL handles GET /rooms/:id/recording/download-url. Owner or registered participant only.
func (h *Handler) GenerateDownloadURL(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	ctx := c.Request.Context()

	room, err := h.rooms.GetByID(ctx, roomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !room.IsOwner(userID) {
		registered, err := h.registrations.Exists(ctx, roomID, userID)
		if err != nil {
			h.fail(c, err)
			return
		}
		if !registered {
			response.Forbidden(c, "not authorized to download this recording")
			return
		}
	}
	if room.RecordingStatus != models.RecordingStatusCompleted || room.ArtifactLocation == nil {
		response.Conflict(c, "recording not ready for download")
		return
	}
	if h.s3 == nil {
		response.ServiceUnavailable(c, "storage not configured")
		return
	}

	bucket, key, err := storage.ParseLocation(*room.ArtifactLocation, h.s3.Bucket())
	if err != nil {
		h.logger.Error("unusable artifact location", zap.String("room_id", roomID.String()), zap.Error(err))
		response.Internal(c, "recording location is not downloadable")
		return
	}
	expire := h.s3.PresignExpire()
	url, err := h.s3.GeneratePresignedDownloadURL(ctx, bucket, key, expire)
	if err != nil {
		h.logger.Error("presign recording download failed", zap.String("room_id", roomID.String()), zap.Error(err))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, DownloadURL{URL: url, ExpiresIn: int(expire.Seconds()), SizeBytes: room.ArtifactSizeBytes})
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errs.ToHTTP(err) >= 500 {
		h.logger.Error("download url failed", zap.Error(err))
	}
	response.Error(c, err)
}
