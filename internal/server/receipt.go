package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	receiptdomain "github.com/retailware/bonusgate/internal/receipt/domain"
)

const headerIdempotencyKey = "X-Idempotency-Key"

// IngestReceipt handles the 1C receipt webhook. Replays answer 200, a
// delivery that created lines answers 201.
func (s *Server) IngestReceipt(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
	if key == "" {
		AbortWithError(c, receiptdomain.ErrMissingIdempotencyKey)
		return
	}

	var req receiptdomain.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	resp, err := s.receiptSvc.Ingest(c.Request.Context(), key, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed() {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// LegacyPurchase handles the single-line purchase webhook kept for older 1C
// deployments.
func (s *Server) LegacyPurchase(c *gin.Context) {
	var req receiptdomain.LegacyPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	resp, err := s.receiptSvc.LegacyPurchase(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
