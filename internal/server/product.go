package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	productdomain "github.com/retailware/bonusgate/internal/product/domain"
)

type syncProductRequest struct {
	ProductCode   string          `json:"product_code" binding:"required"`
	OneCGUID      string          `json:"one_c_guid"`
	Name          string          `json:"name" binding:"required"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	IsPromotional bool            `json:"is_promotional"`
	UpdatedAt     *time.Time      `json:"updated_at"`
}

// SyncProduct handles the 1C catalog feed. A new code answers 201, an update
// to a known code answers 200.
func (s *Server) SyncProduct(c *gin.Context) {
	var req syncProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	var guid *string
	if g := strings.TrimSpace(req.OneCGUID); g != "" {
		guid = &g
	}

	result, err := s.productSvc.Sync(c.Request.Context(), productdomain.SyncRequest{
		ProductCode:   strings.TrimSpace(req.ProductCode),
		OneCGUID:      guid,
		Name:          strings.TrimSpace(req.Name),
		Price:         req.Price,
		Category:      strings.TrimSpace(req.Category),
		IsPromotional: req.IsPromotional,
		UpdatedAt:     req.UpdatedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, label := http.StatusOK, "updated"
	if result.Created {
		status, label = http.StatusCreated, "created"
	}
	c.JSON(status, gin.H{
		"status":  label,
		"product": result.Product,
	})
}
