package rooms

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/backend/internal/middleware"
	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/pkg/errs"
	"github.com/aura-classroom/backend/pkg/response"
)

// CreateRequest is the body for POST /rooms.
type CreateRequest struct {
	Title            string     `json:"title" binding:"required"`
	Description      string     `json:"description"`
	StartsAt         *time.Time `json:"starts_at"`
	MaxParticipants  int        `json:"max_participants"`
	OpenPublish      bool       `json:"open_publish"`
	RecordingEnabled *bool      `json:"recording_enabled"`
}

// ScheduleRequest is the body for PATCH /rooms/:id/schedule.
type ScheduleRequest struct {
	StartsAt time.Time `json:"starts_at" binding:"required"`
}

// StartResponse is returned by POST /rooms/:id/start.
type StartResponse struct {
	Room           *models.Room `json:"room"`
	RecordingJobID string       `json:"recording_job_id,omitempty"`
	RecordingError string       `json:"recording_error,omitempty"`
}

// Handler handles room HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a room handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// RoomID parses the :id path parameter.
func RoomID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return uuid.Nil, false
	}
	return id, true
}

// requester returns the authenticated user or writes 401.
func requester(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
	}
	return id, ok
}

// Create handles POST /rooms.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	room, err := h.svc.Create(c.Request.Context(), userID, CreateParams{
		Title:            req.Title,
		Description:      req.Description,
		StartsAt:         req.StartsAt,
		MaxParticipants:  req.MaxParticipants,
		OpenPublish:      req.OpenPublish,
		RecordingEnabled: req.RecordingEnabled,
	})
	if err != nil {
		h.fail(c, "create room", err)
		return
	}
	response.Created(c, room)
}

// List handles GET /rooms?mine=1. Only the requester's own rooms are listed.
func (h *Handler) List(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	if c.Query("mine") != "1" && c.Query("mine") != "true" {
		response.BadRequest(c, "only mine=1 is supported")
		return
	}
	list, err := h.svc.ListMine(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "list rooms", err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /rooms/:id.
func (h *Handler) Get(c *gin.Context) {
	roomID, ok := RoomID(c)
	if !ok {
		return
	}
	room, err := h.svc.Get(c.Request.Context(), roomID)
	if err != nil {
		h.fail(c, "get room", err)
		return
	}
	response.OK(c, room)
}

// Schedule handles PATCH /rooms/:id/schedule.
func (h *Handler) Schedule(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	roomID, ok := RoomID(c)
	if !ok {
		return
	}
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	room, err := h.svc.Schedule(c.Request.Context(), roomID, userID, req.StartsAt)
	if err != nil {
		h.fail(c, "schedule room", err)
		return
	}
	response.OK(c, room)
}

// Start handles POST /rooms/:id/start.
func (h *Handler) Start(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	roomID, ok := RoomID(c)
	if !ok {
		return
	}
	res, err := h.svc.Start(c.Request.Context(), roomID, userID)
	if err != nil {
		h.fail(c, "start room", err)
		return
	}
	out := StartResponse{Room: res.Room, RecordingJobID: res.RecordingJobID}
	if res.RecordingErr != nil {
		out.RecordingError = errs.Message(res.RecordingErr)
	}
	response.OK(c, out)
}

// End handles POST /rooms/:id/end.
func (h *Handler) End(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	roomID, ok := RoomID(c)
	if !ok {
		return
	}
	room, err := h.svc.End(c.Request.Context(), roomID, userID)
	if err != nil {
		h.fail(c, "end room", err)
		return
	}
	response.OK(c, room)
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if errs.ToHTTP(err) >= 500 {
		h.logger.Error(op+" failed", zap.Error(err))
	}
	response.Error(c, err)
}
