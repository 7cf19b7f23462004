package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type sendMessageRequest struct {
	TelegramID int64  `json:"telegram_id" binding:"required"`
	Text       string `json:"text" binding:"required"`
}

// SendMessage relays a text to a customer through the Telegram Bot API.
func (s *Server) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		AbortWithError(c, newValidationError("text", "required", "text is required"))
		return
	}
	if s.notifier == nil {
		AbortWithError(c, &apiError{status: http.StatusBadGateway, Code: "notifier_unavailable", Detail: "Telegram notifier not configured"})
		return
	}

	// Only customers we know get messages.
	if _, err := s.customerSvc.GetByTelegramID(c.Request.Context(), req.TelegramID); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.notifier.SendMessage(c.Request.Context(), req.TelegramID, req.Text); err != nil {
		s.log.Warn("telegram send failed", zap.Error(err))
		AbortWithError(c, &apiError{status: http.StatusBadGateway, Code: "telegram_error", Detail: "Telegram delivery failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
