package payment

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tiffinlabs/tiffin/plan"
	"github.com/tiffinlabs/tiffin/subscription"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	db       *gorm.DB
	plans    *plan.Manager
	payments *Manager
	subs     *subscription.Manager
	mealPlan *plan.MealPlan
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	planManager, err := plan.NewManager(zap.NewNop(), db)
	require.NoError(t, err)

	paymentManager, err := NewManager(ManagerOptions{
		DB:          db,
		Logger:      zap.NewNop(),
		PlanManager: planManager,
	})
	require.NoError(t, err)

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		DB:          db,
		Logger:      zap.NewNop(),
		PlanManager: planManager,
		Payments:    paymentManager,
	})
	require.NoError(t, err)

	mealPlan := &plan.MealPlan{
		Code:          "standard",
		Name:          "Standard Tiffin",
		Currency:      "usd",
		PricePerMonth: dec("300"),
	}
	require.NoError(t, planManager.Create(context.Background(), mealPlan))

	return &fixture{
		db:       db,
		plans:    planManager,
		payments: paymentManager,
		subs:     subscriptionManager,
		mealPlan: mealPlan,
	}
}

func (f *fixture) subscribe(t *testing.T, customerID string, start, end time.Time) *subscription.Subscription {
	t.Helper()
	result, err := f.subs.Create(context.Background(), subscription.CreateOption{
		CustomerID: customerID,
		Plan:       f.mealPlan,
		StartDate:  start,
		EndDate:    end,
	})
	require.NoError(t, err)
	require.Empty(t, result.PaymentError)
	return result.Subscription
}

func TestCreateDerived(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sub := f.subscribe(t, "cust_1", date(2025, time.January, 1), date(2025, time.January, 31))

	payments, err := f.payments.List(ctx, ListOption{CustomerID: "cust_1"})
	require.NoError(t, err)
	require.Len(t, payments, 1)

	p := payments[0]
	require.Equal(t, sub.ID, p.SubscriptionID)
	require.Equal(t, StatusPending, p.Status)
	require.True(t, p.AmountDue.Equal(dec("300")))
	require.True(t, p.AmountPaid.IsZero())
	require.Equal(t, "Standard Tiffin", p.PlanDetails.PlanName)
	require.Equal(t, "2025-01-01 - 2025-01-31", p.PlanDetails.Period)
	// due five days past the period end
	require.True(t, p.DueDate.Equal(date(2025, time.February, 5)))
}

// nextMonth returns the first and last day of the month after now, so
// the derived due date is always in the future when the status is
// re-derived against the wall clock
func nextMonth() (time.Time, time.Time) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

func TestRecordPayment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	start, end := nextMonth()
	f.subscribe(t, "cust_1", start, end)
	payments, err := f.payments.List(ctx, ListOption{CustomerID: "cust_1"})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	id := payments[0].ID

	_, err = f.payments.RecordPayment(ctx, id, dec("0"))
	require.ErrorIs(t, err, ErrInvalidAmount)

	missing, err := f.payments.RecordPayment(ctx, "missing", dec("10"))
	require.NoError(t, err)
	require.Nil(t, missing)

	partial, err := f.payments.RecordPayment(ctx, id, dec("100"))
	require.NoError(t, err)
	require.Equal(t, StatusPartial, partial.Status)
	require.True(t, partial.AmountPaid.Equal(dec("100")))

	settled, err := f.payments.RecordPayment(ctx, id, dec("200"))
	require.NoError(t, err)
	require.Equal(t, StatusPaid, settled.Status)
	require.True(t, settled.AmountPaid.Equal(dec("300")))
}

func TestBackfill(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sub := f.subscribe(t, "cust_1", date(2024, time.February, 1), date(2024, time.February, 15))
	f.subscribe(t, "cust_2", date(2024, time.February, 1), date(2024, time.February, 29))

	// drop one derived payment to simulate a period that predates payments
	require.NoError(t, f.db.Where("subscription_id = ?", sub.ID).Delete(&Payment{}).Error)

	result, err := f.payments.Backfill(ctx)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	require.Len(t, result.Skipped, 1)
	require.Empty(t, result.Errors)
	require.Equal(t, sub.ID, result.Created[0].SubscriptionID)

	created, err := f.payments.GetByID(ctx, result.Created[0].PaymentID)
	require.NoError(t, err)
	require.NotNil(t, created)
	// the backfilled amount agrees with what creation would have billed
	require.True(t, created.AmountDue.Equal(dec("155.17")))
	require.True(t, created.DueDate.Equal(date(2024, time.February, 20)))

	// a second run creates nothing
	again, err := f.payments.Backfill(ctx)
	require.NoError(t, err)
	require.Empty(t, again.Created)
	require.Len(t, again.Skipped, 2)
}

func TestMarkOverdue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.subscribe(t, "cust_1", date(2025, time.January, 1), date(2025, time.January, 31))
	f.subscribe(t, "cust_2", date(2025, time.February, 1), date(2025, time.February, 28))

	// past January's due date, before February's
	flipped, err := f.payments.MarkOverdue(ctx, date(2025, time.February, 10))
	require.NoError(t, err)
	require.Equal(t, int64(1), flipped)

	overdue, err := f.payments.List(ctx, ListOption{Status: StatusOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, "cust_1", overdue[0].CustomerID)

	// settled payments are never flipped
	rerun, err := f.payments.MarkOverdue(ctx, date(2025, time.February, 10))
	require.NoError(t, err)
	require.Equal(t, int64(0), rerun)
}

func TestMonthlySummary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	start, end := nextMonth()
	f.subscribe(t, "cust_1", start, end)
	f.subscribe(t, "cust_2", start, end)

	payments, err := f.payments.List(ctx, ListOption{CustomerID: "cust_1"})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	_, err = f.payments.RecordPayment(ctx, payments[0].ID, dec("100"))
	require.NoError(t, err)

	summary, err := f.payments.MonthlySummary(ctx, start.Year(), start.Month())
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.Payments)
	require.True(t, summary.TotalDue.Equal(dec("600")))
	require.True(t, summary.TotalPaid.Equal(dec("100")))
	require.True(t, summary.Outstanding.Equal(dec("500")))
	require.Equal(t, int64(1), summary.ByStatus[StatusPartial])
	require.Equal(t, int64(1), summary.ByStatus[StatusPending])
}
