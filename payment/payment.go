package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the custom type to define the settlement state of a payment
type Status string

// Defining the valid statuses of a Payment
const (
	StatusPending Status = "Pending"
	StatusPartial Status = "Partial"
	StatusPaid    Status = "Paid"
	StatusOverdue Status = "Overdue"
)

// GraceDays is added to the subscription end date to produce the due
// date of its derived payment
const GraceDays = 5

// PlanDetails is the snapshot of the billing breakdown at the time the
// payment was derived. Payments stay meaningful even if the plan or the
// subscription changes later.
type PlanDetails struct {
	PlanID           string          `json:"planId"`
	PlanName         string          `json:"planName"`
	MonthlyAmount    decimal.Decimal `json:"monthlyAmount" gorm:"type:numeric"`
	ProratedAmount   decimal.Decimal `json:"proratedAmount" gorm:"type:numeric"`
	FinalAmount      decimal.Decimal `json:"finalAmount" gorm:"type:numeric"`
	DiscountApplied  decimal.Decimal `json:"discountApplied" gorm:"type:numeric"`
	SubscriptionDays int             `json:"subscriptionDays"`
	MonthDays        int             `json:"monthDays"`
	ProratedRatio    decimal.Decimal `json:"proratedRatio" gorm:"type:numeric"`
	Period           string          `json:"period"` // Human-readable "start - end" label
}

// Payment describes an amount owed by a customer for a billing period.
// It references its subscription explicitly but is never cascade-deleted
// with it; instead its existence blocks subscription deletion.
type Payment struct {
	ID             string          `json:"id" gorm:"primaryKey"`
	CustomerID     string          `json:"customerId" gorm:"index"`
	SubscriptionID string          `json:"subscriptionId" gorm:"index"`
	Month          time.Month      `json:"month"`
	Year           int             `json:"year" gorm:"index"`
	PlanDetails    PlanDetails     `json:"planDetails" gorm:"embedded;embeddedPrefix:plan_"`
	AmountDue      decimal.Decimal `json:"amountDue" gorm:"type:numeric"`
	AmountPaid     decimal.Decimal `json:"amountPaid" gorm:"type:numeric"`
	DueDate        time.Time       `json:"dueDate"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// DeriveStatus computes the settlement state from the amounts and the
// due date. Fully covered payments are Paid regardless of the due date;
// anything unpaid past due is Overdue.
func DeriveStatus(amountDue, amountPaid decimal.Decimal, dueDate, now time.Time) Status {
	if amountPaid.GreaterThanOrEqual(amountDue) {
		return StatusPaid
	}
	if now.After(dueDate) {
		return StatusOverdue
	}
	if amountPaid.GreaterThan(decimal.Zero) {
		return StatusPartial
	}
	return StatusPending
}
