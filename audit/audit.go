package audit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one billing event persisted from the broker. The trail is
// append-only and exists for operational forensics, not billing logic.
type Entry struct {
	ID             string          `json:"id" gorm:"primaryKey"`
	EventType      string          `json:"eventType" gorm:"index"`
	CustomerID     string          `json:"customerId" gorm:"index"`
	SubscriptionID string          `json:"subscriptionId"`
	PaymentID      string          `json:"paymentId"`
	Month          time.Month      `json:"month"`
	Year           int             `json:"year"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:numeric"`
	OccurredAt     time.Time       `json:"occurredAt"`
	CreatedAt      time.Time       `json:"createdAt"`
}
