package subscription

import (
	"time"

	"github.com/tiffinlabs/tiffin/billing"
)

//				Reconciliation helpers

// normalizeDate drops the time-of-day so stored ranges compare by
// calendar date only
func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// pricingFromQuote copies a billing quote into the persisted snapshot
func pricingFromQuote(res billing.ProrationResult, discount *billing.Discount) Pricing {
	p := Pricing{
		BasePricePerMonth: res.BasePricePerMonth,
		SubscriptionDays:  res.SubscriptionDays,
		MonthDays:         res.MonthDays,
		ProratedRatio:     res.ProratedRatio,
		ProratedAmount:    res.ProratedAmount,
		DiscountAmount:    res.DiscountAmount,
		FinalPrice:        res.FinalAmount,
	}
	if discount != nil {
		p.DiscountType = discount.Type
		p.DiscountValue = discount.Value
		p.DiscountReason = discount.Reason
	}
	return p
}

// endsOnLastDayOfMonth reports whether the subscription ran through the
// final calendar day of the given month, which is what makes it eligible
// for auto-extension into the next month
func (s *Subscription) endsOnLastDayOfMonth(year int, month time.Month) bool {
	last := billing.LastDayOfMonth(year, month)
	end := normalizeDate(s.EndDate)
	return end.Equal(last)
}
