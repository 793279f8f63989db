package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateProratedAmountLeapFebruary(t *testing.T) {
	// half of a 29-day February at 300/month
	res := CalculateProratedAmount(dec("300"), date(2024, time.February, 1), date(2024, time.February, 15), nil)

	require.Equal(t, 15, res.SubscriptionDays)
	require.Equal(t, 29, res.MonthDays)
	require.Equal(t, "0.5172", res.ProratedRatio.StringFixed(4))
	require.Equal(t, "155.17", res.ProratedAmount.StringFixed(2))
	require.Equal(t, "0.00", res.DiscountAmount.StringFixed(2))
	require.Equal(t, "155.17", res.FinalAmount.StringFixed(2))
}

func TestCalculateProratedAmountPercentageDiscount(t *testing.T) {
	discount := &Discount{Type: DiscountPercentage, Value: dec("10")}
	res := CalculateProratedAmount(dec("300"), date(2024, time.February, 1), date(2024, time.February, 15), discount)

	require.Equal(t, "15.52", res.DiscountAmount.StringFixed(2))
	require.Equal(t, "139.65", res.FinalAmount.StringFixed(2))
}

func TestCalculateProratedAmountCrossMonth(t *testing.T) {
	// Jan 28 - Feb 2 2024: reference month is round((31+29)/2) = 30 days
	res := CalculateProratedAmount(dec("200"), date(2024, time.January, 28), date(2024, time.February, 2), nil)

	require.Equal(t, 6, res.SubscriptionDays)
	require.Equal(t, 30, res.MonthDays)
	require.Equal(t, "0.2000", res.ProratedRatio.StringFixed(4))
	require.Equal(t, "40.00", res.ProratedAmount.StringFixed(2))
	require.Equal(t, "40.00", res.FinalAmount.StringFixed(2))
}

func TestCalculateProratedAmountFixedDiscountIsProrated(t *testing.T) {
	// a fixed monthly discount scales down with the same ratio as the base
	discount := &Discount{Type: DiscountFixed, Value: dec("60")}
	res := CalculateProratedAmount(dec("300"), date(2024, time.February, 1), date(2024, time.February, 15), discount)

	require.Equal(t, "31.03", res.DiscountAmount.StringFixed(2))
	require.Equal(t, "124.14", res.FinalAmount.StringFixed(2))
}

func TestCalculateProratedAmountFixedDiscountCapped(t *testing.T) {
	discount := &Discount{Type: DiscountFixed, Value: dec("5000")}
	res := CalculateProratedAmount(dec("300"), date(2024, time.February, 1), date(2024, time.February, 15), discount)

	require.Equal(t, res.ProratedAmount.StringFixed(2), res.DiscountAmount.StringFixed(2))
	require.Equal(t, "0.00", res.FinalAmount.StringFixed(2))
	require.False(t, res.FinalAmount.IsNegative())
}

func TestCalculateProratedAmountSingleDay(t *testing.T) {
	res := CalculateProratedAmount(dec("310"), date(2024, time.January, 10), date(2024, time.January, 10), nil)

	require.Equal(t, 1, res.SubscriptionDays)
	require.Equal(t, 31, res.MonthDays)
	require.Equal(t, "10.00", res.ProratedAmount.StringFixed(2))
}

func TestCalculateProratedAmountZeroFallback(t *testing.T) {
	// missing inputs produce a defined zero result, not an error
	res := CalculateProratedAmount(decimal.Zero, date(2024, time.January, 1), date(2024, time.January, 31), nil)
	require.Equal(t, 30, res.MonthDays)
	require.True(t, res.FinalAmount.IsZero())

	res = CalculateProratedAmount(dec("300"), time.Time{}, date(2024, time.January, 31), nil)
	require.Equal(t, 30, res.MonthDays)
	require.True(t, res.FinalAmount.IsZero())

	res = CalculateProratedAmount(dec("300"), date(2024, time.January, 31), date(2024, time.January, 1), nil)
	require.True(t, res.FinalAmount.IsZero())
}

func TestCalculateProratedAmountNegativeDiscountIgnored(t *testing.T) {
	discount := &Discount{Type: DiscountPercentage, Value: dec("-10")}
	res := CalculateProratedAmount(dec("300"), date(2024, time.February, 1), date(2024, time.February, 15), discount)
	require.True(t, res.DiscountAmount.IsZero())
	require.Equal(t, res.ProratedAmount.StringFixed(2), res.FinalAmount.StringFixed(2))
}

func TestNeedsProration(t *testing.T) {
	cases := []struct {
		name     string
		start    time.Time
		end      time.Time
		expected bool
	}{
		{"full January", date(2024, time.January, 1), date(2024, time.January, 31), false},
		{"28 of 31 days is above threshold", date(2024, time.January, 1), date(2024, time.January, 28), false},
		{"27 of 31 days is below threshold", date(2024, time.January, 1), date(2024, time.January, 27), true},
		{"exactly 90% of April", date(2024, time.April, 1), date(2024, time.April, 27), false},
		{"half a month", date(2024, time.February, 1), date(2024, time.February, 15), true},
		{"cross-month always prorates", date(2024, time.January, 25), date(2024, time.February, 24), true},
		{"reversed range", date(2024, time.January, 31), date(2024, time.January, 1), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.expected, NeedsProration(c.start, c.end))
		})
	}
}

func TestQuoteFullMonthRate(t *testing.T) {
	// near-full month bills the whole monthly rate instead of a <1 ratio
	res := Quote(dec("300"), date(2024, time.January, 1), date(2024, time.January, 28), nil)

	require.Equal(t, "1.0000", res.ProratedRatio.StringFixed(4))
	require.Equal(t, "300.00", res.ProratedAmount.StringFixed(2))
	require.Equal(t, "300.00", res.FinalAmount.StringFixed(2))
	require.Equal(t, 28, res.SubscriptionDays)
	require.Equal(t, 31, res.MonthDays)
}

func TestQuoteFullMonthDiscounts(t *testing.T) {
	pct := &Discount{Type: DiscountPercentage, Value: dec("10")}
	res := Quote(dec("300"), date(2024, time.February, 1), date(2024, time.February, 29), pct)
	require.Equal(t, "30.00", res.DiscountAmount.StringFixed(2))
	require.Equal(t, "270.00", res.FinalAmount.StringFixed(2))

	// fixed discount applies at face value when the ratio is 1
	fixed := &Discount{Type: DiscountFixed, Value: dec("45")}
	res = Quote(dec("300"), date(2024, time.February, 1), date(2024, time.February, 29), fixed)
	require.Equal(t, "45.00", res.DiscountAmount.StringFixed(2))
	require.Equal(t, "255.00", res.FinalAmount.StringFixed(2))
}

func TestQuotePartialPeriodDelegatesToProration(t *testing.T) {
	quoted := Quote(dec("300"), date(2024, time.February, 1), date(2024, time.February, 15), nil)
	prorated := CalculateProratedAmount(dec("300"), date(2024, time.February, 1), date(2024, time.February, 15), nil)
	require.Equal(t, prorated, quoted)
}

func TestPeriodString(t *testing.T) {
	require.Equal(t, "2024-02-01 - 2024-02-15", PeriodString(date(2024, time.February, 1), date(2024, time.February, 15)))
}
