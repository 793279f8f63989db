package subscription

import (
	"time"

	"github.com/tiffinlabs/tiffin/billing"
	"github.com/tiffinlabs/tiffin/plan"

	"github.com/shopspring/decimal"
)

// Pricing is the billing breakdown snapshotted onto a subscription at
// creation time. The snapshot is authoritative: later plan price changes
// never reprice an existing subscription.
type Pricing struct {
	BasePricePerMonth decimal.Decimal      `json:"basePricePerMonth" gorm:"type:numeric"`
	DiscountType      billing.DiscountType `json:"discountType"`
	DiscountValue     decimal.Decimal      `json:"discountValue" gorm:"type:numeric"`
	DiscountReason    string               `json:"discountReason"`
	SubscriptionDays  int                  `json:"subscriptionDays"`
	MonthDays         int                  `json:"monthDays"`
	ProratedRatio     decimal.Decimal      `json:"proratedRatio" gorm:"type:numeric"`
	ProratedAmount    decimal.Decimal      `json:"proratedAmount" gorm:"type:numeric"`
	DiscountAmount    decimal.Decimal      `json:"discountAmount" gorm:"type:numeric"`
	FinalPrice        decimal.Decimal      `json:"finalPrice" gorm:"type:numeric"`
}

// Subscription describes one customer's meal plan over a date range.
// Month and Year tag the billing period the range starts in.
type Subscription struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	CustomerID    string     `json:"customerId" gorm:"index"`
	PlanID        string     `json:"planId" gorm:"index"`
	Month         time.Month `json:"month"`
	Year          int        `json:"year"`
	StartDate     time.Time  `json:"startDate"` // Inclusive
	EndDate       time.Time  `json:"endDate"`   // Inclusive
	Pricing       Pricing    `json:"pricing" gorm:"embedded;embeddedPrefix:pricing_"`
	Status        Status     `json:"status"`
	MealOverrides plan.Meals `json:"mealOverrides" gorm:"type:text"` // Per-subscription deviations from the plan's meals
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Discount reconstructs the billing discount recorded on the pricing
// snapshot, nil when no discount was applied
func (s *Subscription) Discount() *billing.Discount {
	if s.Pricing.DiscountValue.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	return &billing.Discount{
		Type:   s.Pricing.DiscountType,
		Value:  s.Pricing.DiscountValue,
		Reason: s.Pricing.DiscountReason,
	}
}
