package handlers

import (
	"net/http"
	"strconv"

	"github.com/barnabee/barnabee/internal/domain/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuditHandler exposes the household audit log for review.
type AuditHandler struct {
	audit  repository.AuditRepository
	logger *zap.Logger
}

// NewAuditHandler creates the handler.
func NewAuditHandler(audit repository.AuditRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// ByConversation returns a conversation's audit entries in submission
// order. ?limit= caps the result, default 50.
func (h *AuditHandler) ByConversation(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.audit.FindByConversation(c.Request.Context(), conversationID, limit)
	if err != nil {
		h.logger.Error("Audit read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit read failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"entries":         entries,
	})
}
