package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDeriveStatus(t *testing.T) {
	due := time.Date(2025, time.February, 5, 0, 0, 0, 0, time.UTC)
	before := due.AddDate(0, 0, -3)
	after := due.AddDate(0, 0, 3)

	cases := []struct {
		name       string
		amountDue  string
		amountPaid string
		now        time.Time
		expected   Status
	}{
		{"nothing paid before due", "155.17", "0", before, StatusPending},
		{"partially paid before due", "155.17", "100", before, StatusPartial},
		{"fully paid before due", "155.17", "155.17", before, StatusPaid},
		{"overpaid", "155.17", "200", before, StatusPaid},
		{"nothing paid past due", "155.17", "0", after, StatusOverdue},
		{"partially paid past due", "155.17", "100", after, StatusOverdue},
		{"fully paid past due stays paid", "155.17", "155.17", after, StatusPaid},
		{"zero due counts as settled", "0", "0", before, StatusPaid},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.expected, DeriveStatus(dec(c.amountDue), dec(c.amountPaid), due, c.now))
		})
	}
}
