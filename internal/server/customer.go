package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	customerdomain "github.com/retailware/bonusgate/internal/customer/domain"
)

type syncCustomerRequest struct {
	TelegramID         int64            `json:"telegram_id" binding:"required"`
	OneCGUID           string           `json:"one_c_guid"`
	BonusBalance       *decimal.Decimal `json:"bonus_balance"`
	CreatedAt          *time.Time       `json:"created_at"`
	ReferrerTelegramID *int64           `json:"referrer_telegram_id"`
}

type syncCustomerResponse struct {
	Status   string                  `json:"status"`
	Customer customerdomain.Snapshot `json:"customer"`
}

// SyncCustomer handles the 1C customer-sync webhook. With only a telegram_id
// it is a pure lookup; any writable field switches it to an upsert.
func (s *Server) SyncCustomer(c *gin.Context) {
	var req syncCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	result, err := s.customerSvc.Sync(c.Request.Context(), customerdomain.SyncRequest{
		TelegramID:         req.TelegramID,
		OneCGUID:           strings.TrimSpace(req.OneCGUID),
		BonusBalance:       req.BonusBalance,
		CreatedAt:          req.CreatedAt,
		ReferrerTelegramID: req.ReferrerTelegramID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := "lookup"
	if result.WriteMode {
		status = "ok"
	}
	c.JSON(http.StatusOK, syncCustomerResponse{
		Status:   status,
		Customer: snapshotFromSync(result),
	})
}

func snapshotFromSync(result *customerdomain.SyncResult) customerdomain.Snapshot {
	cust := result.Customer
	snap := customerdomain.Snapshot{
		TelegramID:         cust.TelegramID,
		OneCGUID:           result.OneCGUID,
		BonusBalance:       cust.Bonuses.InexactFloat64(),
		TotalSpent:         cust.TotalSpent.InexactFloat64(),
		PurchaseCount:      cust.PurchaseCount,
		ReferrerTelegramID: cust.ReferrerTelegramID,
	}
	if cust.LastPurchaseDate != nil {
		formatted := cust.LastPurchaseDate.UTC().Format("2006-01-02 15:04:05")
		snap.LastPurchaseDate = &formatted
	}
	return snap
}
