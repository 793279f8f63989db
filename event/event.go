package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type is the custom type to identify a billing event
type Type string

// Defining the billing events published on the broker
const (
	TypeSubscriptionCreated  Type = "subscription.created"
	TypeSubscriptionExtended Type = "subscription.extended"
	TypePaymentCreated       Type = "payment.created"
	TypePaymentRecorded      Type = "payment.recorded"
	TypePaymentOverdue       Type = "payment.overdue"
)

// BillingEvent is the JSON message emitted when subscriptions and
// payments change. The worker persists these into the audit trail.
type BillingEvent struct {
	Type           Type            `json:"type"`
	CustomerID     string          `json:"customerId"`
	SubscriptionID string          `json:"subscriptionId,omitempty"`
	PaymentID      string          `json:"paymentId,omitempty"`
	PlanID         string          `json:"planId,omitempty"`
	Month          time.Month      `json:"month,omitempty"`
	Year           int             `json:"year,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	At             time.Time       `json:"at"`
}
