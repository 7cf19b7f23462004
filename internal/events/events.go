package events

// Loyalty event types written to the outbox.
const (
	EventReceiptIngested  = "receipt.ingested"
	EventCustomerSynced   = "customer.synced"
	EventProductSynced    = "product.synced"
	EventPurchaseRecorded = "purchase.recorded"
)

// ReceiptIngestedPayload captures the minimal data downstream consumers need
// to react to a persisted receipt.
type ReceiptIngestedPayload struct {
	ReceiptGUID  string  `json:"receipt_guid"`
	CustomerID   string  `json:"customer_id"`
	TelegramID   *int64  `json:"telegram_id,omitempty"`
	CreatedCount int     `json:"created_count"`
	TotalAmount  float64 `json:"total_amount"`
	BonusEarned  float64 `json:"bonus_earned"`
	BonusSpent   float64 `json:"bonus_spent"`
}

// ToMap converts the payload into an outbox-friendly map.
func (p ReceiptIngestedPayload) ToMap() map[string]any {
	payload := map[string]any{
		"receipt_guid":  p.ReceiptGUID,
		"customer_id":   p.CustomerID,
		"created_count": p.CreatedCount,
		"total_amount":  p.TotalAmount,
		"bonus_earned":  p.BonusEarned,
		"bonus_spent":   p.BonusSpent,
	}
	if p.TelegramID != nil {
		payload["telegram_id"] = *p.TelegramID
	}
	return payload
}
