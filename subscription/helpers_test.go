package subscription

import (
	"testing"
	"time"

	"github.com/tiffinlabs/tiffin/billing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeDate(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	noisy := time.Date(2025, time.March, 14, 18, 45, 12, 999, loc)
	require.Equal(t, date(2025, time.March, 14), normalizeDate(noisy))
}

func TestPricingFromQuote(t *testing.T) {
	base := decimal.RequireFromString("300")
	discount := &billing.Discount{
		Type:   billing.DiscountPercentage,
		Value:  decimal.RequireFromString("10"),
		Reason: "loyalty",
	}
	quote := billing.Quote(base, date(2024, time.February, 1), date(2024, time.February, 15), discount)

	p := pricingFromQuote(quote, discount)
	require.True(t, p.BasePricePerMonth.Equal(base))
	require.Equal(t, 15, p.SubscriptionDays)
	require.Equal(t, 29, p.MonthDays)
	require.True(t, p.ProratedAmount.Equal(quote.ProratedAmount))
	require.True(t, p.FinalPrice.Equal(quote.FinalAmount))
	require.Equal(t, billing.DiscountPercentage, p.DiscountType)
	require.Equal(t, "loyalty", p.DiscountReason)

	noDiscount := pricingFromQuote(billing.Quote(base, date(2024, time.February, 1), date(2024, time.February, 15), nil), nil)
	require.Empty(t, noDiscount.DiscountType)
	require.True(t, noDiscount.DiscountValue.IsZero())
}

func TestEndsOnLastDayOfMonth(t *testing.T) {
	sub := &Subscription{EndDate: date(2025, time.January, 31)}
	require.True(t, sub.endsOnLastDayOfMonth(2025, time.January))

	sub.EndDate = date(2025, time.January, 30)
	require.False(t, sub.endsOnLastDayOfMonth(2025, time.January))

	// leap February
	sub.EndDate = date(2024, time.February, 29)
	require.True(t, sub.endsOnLastDayOfMonth(2024, time.February))
}

func TestSubscriptionDiscount(t *testing.T) {
	sub := &Subscription{}
	require.Nil(t, sub.Discount())

	sub.Pricing.DiscountType = billing.DiscountFixed
	sub.Pricing.DiscountValue = decimal.RequireFromString("60")
	sub.Pricing.DiscountReason = "referral"
	d := sub.Discount()
	require.NotNil(t, d)
	require.Equal(t, billing.DiscountFixed, d.Type)
	require.True(t, d.Value.Equal(decimal.RequireFromString("60")))
	require.Equal(t, "referral", d.Reason)
}
