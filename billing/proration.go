package billing

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType is the custom type to identify how a Discount applies
type DiscountType string

// Defining constants
const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// fullMonthThreshold is the fraction of a month a same-month range must
// cover before it is billed at the full monthly rate instead of prorated
const fullMonthThreshold = 0.9

// Discount describes a price reduction on a subscription period.
// A nil Discount is equivalent to a percentage discount of zero.
type Discount struct {
	Type   DiscountType    `json:"type"`
	Value  decimal.Decimal `json:"value"`
	Reason string          `json:"reason,omitempty"`
}

// ProrationResult is the full billing breakdown for a subscription
// period. Amounts are rounded to 2 decimal places, the ratio to 4; the
// amounts are always computed from the full-precision ratio, so
// BasePricePerMonth multiplied by the stored ratio can drift from
// ProratedAmount by a cent.
type ProrationResult struct {
	BasePricePerMonth decimal.Decimal `json:"basePricePerMonth"`
	SubscriptionDays  int             `json:"subscriptionDays"`
	MonthDays         int             `json:"monthDays"`
	ProratedRatio     decimal.Decimal `json:"proratedRatio"`
	ProratedAmount    decimal.Decimal `json:"proratedAmount"`
	DiscountAmount    decimal.Decimal `json:"discountAmount"`
	FinalAmount       decimal.Decimal `json:"finalAmount"`
}

// PeriodString renders the "start - end" label stored in payment
// snapshots for human consumption
func PeriodString(start, end time.Time) string {
	return fmt.Sprintf("%s - %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// zeroResult is the defensive default returned when inputs are absent.
// Callers decide whether a zero quote is meaningful.
func zeroResult() ProrationResult {
	return ProrationResult{
		BasePricePerMonth: decimal.Zero,
		SubscriptionDays:  0,
		MonthDays:         30,
		ProratedRatio:     decimal.Zero,
		ProratedAmount:    decimal.Zero,
		DiscountAmount:    decimal.Zero,
		FinalAmount:       decimal.Zero,
	}
}

// referenceMonthDays picks the denominator for the prorated ratio. A
// range inside one calendar month uses that month's length; a range
// spanning a month boundary averages the two boundary months so neither
// month's length penalizes or favors the charge.
func referenceMonthDays(start, end time.Time) int {
	if sameCalendarMonth(start, end) {
		return DaysInMonth(start.Year(), start.Month())
	}
	startLen := DaysInMonth(start.Year(), start.Month())
	endLen := DaysInMonth(end.Year(), end.Month())
	return int(math.Round(float64(startLen+endLen) / 2))
}

// applyDiscount computes the discount amount for an already prorated
// charge. Fixed discounts are scaled by the same ratio as the base price
// and never exceed the prorated amount.
func applyDiscount(proratedAmount, ratio decimal.Decimal, d *Discount) decimal.Decimal {
	if d == nil || d.Value.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	switch d.Type {
	case DiscountPercentage:
		return proratedAmount.Mul(d.Value).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountFixed:
		prorated := d.Value.Mul(ratio).Round(2)
		if prorated.GreaterThan(proratedAmount) {
			return proratedAmount
		}
		return prorated
	default:
		return decimal.Zero
	}
}

// CalculateProratedAmount converts a monthly base price and a closed
// date range into the billed breakdown for that period.
func CalculateProratedAmount(basePricePerMonth decimal.Decimal, start, end time.Time, discount *Discount) ProrationResult {
	if basePricePerMonth.LessThanOrEqual(decimal.Zero) || start.IsZero() || end.IsZero() {
		return zeroResult()
	}

	subscriptionDays := InclusiveDays(start, end)
	if subscriptionDays < 1 {
		return zeroResult()
	}

	monthDays := referenceMonthDays(start, end)
	ratio := decimal.NewFromInt(int64(subscriptionDays)).Div(decimal.NewFromInt(int64(monthDays)))

	proratedAmount := basePricePerMonth.Mul(ratio).Round(2)
	discountAmount := applyDiscount(proratedAmount, ratio, discount)

	finalAmount := proratedAmount.Sub(discountAmount).Round(2)
	if finalAmount.IsNegative() {
		finalAmount = decimal.Zero
	}

	return ProrationResult{
		BasePricePerMonth: basePricePerMonth,
		SubscriptionDays:  subscriptionDays,
		MonthDays:         monthDays,
		ProratedRatio:     ratio.Round(4),
		ProratedAmount:    proratedAmount,
		DiscountAmount:    discountAmount,
		FinalAmount:       finalAmount,
	}
}

// NeedsProration decides whether a period can be billed at the full
// monthly rate. A same-month range covering at least 90% of its month is
// close enough to a full month; anything crossing a month boundary is
// always prorated.
func NeedsProration(start, end time.Time) bool {
	if start.IsZero() || end.IsZero() {
		return true
	}
	if !sameCalendarMonth(start, end) {
		return true
	}
	days := InclusiveDays(start, end)
	if days < 1 {
		return true
	}
	monthDays := DaysInMonth(start.Year(), start.Month())
	return float64(days)/float64(monthDays) < fullMonthThreshold
}

// Quote is the single pricing entry point for subscription creation,
// auto-extension and payment backfill. Periods that pass the full-month
// check bill the whole monthly rate; everything else goes through
// proration. All three flows re-enter here so their amounts agree.
func Quote(basePricePerMonth decimal.Decimal, start, end time.Time, discount *Discount) ProrationResult {
	if NeedsProration(start, end) {
		return CalculateProratedAmount(basePricePerMonth, start, end, discount)
	}

	if basePricePerMonth.LessThanOrEqual(decimal.Zero) || start.IsZero() || end.IsZero() {
		return zeroResult()
	}

	one := decimal.NewFromInt(1)
	fullAmount := basePricePerMonth.Round(2)
	discountAmount := applyDiscount(fullAmount, one, discount)

	finalAmount := fullAmount.Sub(discountAmount).Round(2)
	if finalAmount.IsNegative() {
		finalAmount = decimal.Zero
	}

	return ProrationResult{
		BasePricePerMonth: basePricePerMonth,
		SubscriptionDays:  InclusiveDays(start, end),
		MonthDays:         DaysInMonth(start.Year(), start.Month()),
		ProratedRatio:     one.Round(4),
		ProratedAmount:    fullAmount,
		DiscountAmount:    discountAmount,
		FinalAmount:       finalAmount,
	}
}
