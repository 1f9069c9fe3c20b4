package tokens

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/backend/internal/middleware"
	"github.com/aura-classroom/backend/pkg/errs"
	"github.com/aura-classroom/backend/pkg/response"
)

// Handler serves GET /rooms/:id/token.
type Handler struct {
	issuer *Issuer
	logger *zap.Logger
}

// NewHandler creates a token handler.
func NewHandler(issuer *Issuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{issuer: issuer, logger: logger}
}

// Issue handles GET /rooms/:id/token.
func (h *Handler) Issue(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	cred, err := h.issuer.Issue(c.Request.Context(), roomID, userID)
	if err != nil {
		if errs.ToHTTP(err) >= 500 {
			h.logger.Error("issue credential failed", zap.String("room_id", roomID.String()), zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	response.OK(c, cred)
}
