package webhook

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-classroom/backend/pkg/response"
)

const maxBodyBytes = 1 << 20

// Handler serves POST /webhooks/livekit.
type Handler struct {
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(reconciler *Reconciler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reconciler: reconciler, logger: logger}
}

// Receive reads the raw body, which must stay byte-exact for signature checks.
// Only signature failures (401) and store failures (500) ask the sender to retry;
// unreadable or oversized bodies are acknowledged as malformed.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("webhook body unreadable", zap.Error(err))
		response.OK(c, gin.H{"outcome": OutcomeMalformed})
		return
	}
	outcome, err := h.reconciler.Handle(c.Request.Context(), body, c.GetHeader(HeaderAuthorization))
	switch outcome {
	case OutcomeRejected:
		response.Unauthorized(c, "invalid signature")
	case OutcomeFailed:
		response.Internal(c, "internal error")
	default:
		if err != nil {
			h.logger.Debug("webhook acknowledged with error", zap.Error(err))
		}
		response.OK(c, gin.H{"outcome": outcome})
	}
}
