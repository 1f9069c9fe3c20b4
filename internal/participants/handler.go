// Package participants manages room registrations.
package participants

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/backend/internal/middleware"
	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/pkg/errs"
	"github.com/aura-classroom/backend/pkg/response"
)

// Store is the registration persistence the handler needs.
type Store interface {
	Register(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	Unregister(ctx context.Context, roomID, userID uuid.UUID) error
	Exists(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error)
}

// RoomLoader loads rooms for ownership checks.
type RoomLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

// Handler handles registration endpoints under /rooms/:id.
type Handler struct {
	store  Store
	rooms  RoomLoader
	logger *zap.Logger
}

// NewHandler creates a registration handler.
func NewHandler(store Store, rooms RoomLoader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, rooms: rooms, logger: logger}
}

func ids(c *gin.Context) (roomID, userID uuid.UUID, ok bool) {
	userID, ok = middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return uuid.Nil, uuid.Nil, false
	}
	return roomID, userID, true
}

// Register handles POST /rooms/:id/registration.
func (h *Handler) Register(c *gin.Context) {
	roomID, userID, ok := ids(c)
	if !ok {
		return
	}
	created, err := h.store.Register(c.Request.Context(), roomID, userID)
	if err != nil {
		h.fail(c, "register", err)
		return
	}
	if created {
		h.logger.Info("participant registered", zap.String("room_id", roomID.String()), zap.String("user_id", userID.String()))
		response.Created(c, gin.H{"registered": true})
		return
	}
	response.OK(c, gin.H{"registered": true})
}

// Unregister handles DELETE /rooms/:id/registration.
func (h *Handler) Unregister(c *gin.Context) {
	roomID, userID, ok := ids(c)
	if !ok {
		return
	}
	if err := h.store.Unregister(c.Request.Context(), roomID, userID); err != nil {
		h.fail(c, "unregister", err)
		return
	}
	response.NoContent(c)
}

// Status handles GET /rooms/:id/registration.
func (h *Handler) Status(c *gin.Context) {
	roomID, userID, ok := ids(c)
	if !ok {
		return
	}
	registered, err := h.store.Exists(c.Request.Context(), roomID, userID)
	if err != nil {
		h.fail(c, "registration status", err)
		return
	}
	response.OK(c, gin.H{"registered": registered})
}

// List handles GET /rooms/:id/participants (owner only).
func (h *Handler) List(c *gin.Context) {
	roomID, userID, ok := ids(c)
	if !ok {
		return
	}
	room, err := h.rooms.GetByID(c.Request.Context(), roomID)
	if err != nil {
		h.fail(c, "load room", err)
		return
	}
	if !room.IsOwner(userID) {
		response.Forbidden(c, "only the room owner can list participants")
		return
	}
	list, err := h.store.ListByRoom(c.Request.Context(), roomID)
	if err != nil {
		h.fail(c, "list participants", err)
		return
	}
	response.OK(c, list)
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if errs.ToHTTP(err) >= 500 {
		h.logger.Error(op+" failed", zap.Error(err))
	}
	response.Error(c, err)
}
