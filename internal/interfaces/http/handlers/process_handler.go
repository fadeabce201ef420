package handlers

import (
	"net/http"

	"github.com/barnabee/barnabee/internal/application/usecase"
	"github.com/barnabee/barnabee/internal/domain/entity"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProcessHandler exposes the request pipeline over HTTP.
type ProcessHandler struct {
	pipeline *usecase.ProcessRequestUseCase
	logger   *zap.Logger
}

// NewProcessHandler creates the handler.
func NewProcessHandler(pipeline *usecase.ProcessRequestUseCase, logger *zap.Logger) *ProcessHandler {
	return &ProcessHandler{pipeline: pipeline, logger: logger}
}

// processRequest is the POST /api/v1/process body.
type processRequest struct {
	Utterance      string `json:"utterance" binding:"required"`
	Speaker        string `json:"speaker"`
	Room           string `json:"room"`
	ConversationID string `json:"conversation_id"`
}

// Process runs one utterance through the pipeline. The only error surface
// is capacity: every other failure degrades into a spoken response.
func (h *ProcessHandler) Process(c *gin.Context) {
	var body processRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "utterance is required"})
		return
	}

	req := entity.NewRequest(body.Utterance, body.Speaker, body.Room, body.ConversationID)
	resp, err := h.pipeline.Execute(c.Request.Context(), req)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeCapacity {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "assistant is busy, try again"})
			return
		}
		h.logger.Error("Pipeline failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
