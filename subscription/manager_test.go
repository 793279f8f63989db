package subscription

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tiffinlabs/tiffin/billing"
	"github.com/tiffinlabs/tiffin/plan"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fakePayments struct {
	derived     []string
	deriveErr   error
	inYearRange bool
	forSub      bool
}

func (f *fakePayments) CreateDerived(ctx context.Context, sub *Subscription, planName string) error {
	if f.deriveErr != nil {
		return f.deriveErr
	}
	f.derived = append(f.derived, sub.ID)
	return nil
}

func (f *fakePayments) ExistsInYearRange(ctx context.Context, customerID string, startYear, endYear int) (bool, error) {
	return f.inYearRange, nil
}

func (f *fakePayments) ExistsForSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	return f.forSub, nil
}

func testManager(t *testing.T, payments PaymentBridge) (*Manager, *plan.Manager) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	planManager, err := plan.NewManager(zap.NewNop(), db)
	require.NoError(t, err)

	m, err := NewManager(ManagerOptions{
		DB:          db,
		Logger:      zap.NewNop(),
		PlanManager: planManager,
		Payments:    payments,
	})
	require.NoError(t, err)
	return m, planManager
}

func testPlan(t *testing.T, planManager *plan.Manager, price string) *plan.MealPlan {
	t.Helper()
	p := &plan.MealPlan{
		Code:          "standard",
		Name:          "Standard Tiffin",
		Currency:      "usd",
		PricePerMonth: decimal.RequireFromString(price),
	}
	require.NoError(t, planManager.Create(context.Background(), p))
	return p
}

func TestCreateRejectsInvalidPeriod(t *testing.T) {
	m, planManager := testManager(t, &fakePayments{})
	mealPlan := testPlan(t, planManager, "300")

	_, err := m.Create(context.Background(), CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 15),
		EndDate:    date(2025, time.January, 1),
	})
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestCreateRejectsOverlappingPeriod(t *testing.T) {
	m, planManager := testManager(t, &fakePayments{})
	mealPlan := testPlan(t, planManager, "300")
	ctx := context.Background()

	_, err := m.Create(ctx, CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 1),
		EndDate:    date(2025, time.January, 15),
	})
	require.NoError(t, err)

	_, err = m.Create(ctx, CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 10),
		EndDate:    date(2025, time.January, 20),
	})
	require.ErrorIs(t, err, ErrOverlappingPeriod)

	// a different customer is never blocked
	_, err = m.Create(ctx, CreateOption{
		CustomerID: "cust_2",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 10),
		EndDate:    date(2025, time.January, 20),
	})
	require.NoError(t, err)

	// adjacent ranges for the same customer are fine
	_, err = m.Create(ctx, CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 16),
		EndDate:    date(2025, time.January, 31),
	})
	require.NoError(t, err)

	// sharing a single boundary day still conflicts, ranges are closed
	_, err = m.Create(ctx, CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 31),
		EndDate:    date(2025, time.February, 5),
	})
	require.ErrorIs(t, err, ErrOverlappingPeriod)

	subs, err := m.List(ctx, ListOption{CustomerID: "cust_1"})
	require.NoError(t, err)
	require.Len(t, subs, 2)
}

func TestCreatePricesThePeriod(t *testing.T) {
	payments := &fakePayments{}
	m, planManager := testManager(t, payments)
	mealPlan := testPlan(t, planManager, "300")

	result, err := m.Create(context.Background(), CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2024, time.February, 1),
		EndDate:    date(2024, time.February, 15),
	})
	require.NoError(t, err)
	require.Empty(t, result.PaymentError)

	sub := result.Subscription
	require.Equal(t, StatusActive, sub.Status)
	require.Equal(t, time.February, sub.Month)
	require.Equal(t, 2024, sub.Year)
	require.Equal(t, 15, sub.Pricing.SubscriptionDays)
	require.Equal(t, 29, sub.Pricing.MonthDays)
	require.True(t, sub.Pricing.FinalPrice.Equal(decimal.RequireFromString("155.17")))

	require.Equal(t, []string{sub.ID}, payments.derived)
}

func TestCreateSurvivesPaymentFailure(t *testing.T) {
	payments := &fakePayments{deriveErr: errors.New("payment store is down")}
	m, planManager := testManager(t, payments)
	mealPlan := testPlan(t, planManager, "300")
	ctx := context.Background()

	result, err := m.Create(ctx, CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 1),
		EndDate:    date(2025, time.January, 31),
	})
	require.NoError(t, err)
	require.Equal(t, "payment store is down", result.PaymentError)

	// the subscription stands despite the failed payment
	persisted, err := m.Get(ctx, result.Subscription.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
}

func TestUpdateReprices(t *testing.T) {
	m, planManager := testManager(t, &fakePayments{})
	mealPlan := testPlan(t, planManager, "300")
	ctx := context.Background()

	result, err := m.Create(ctx, CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 1),
		EndDate:    date(2025, time.January, 31),
	})
	require.NoError(t, err)
	require.True(t, result.Subscription.Pricing.FinalPrice.Equal(decimal.RequireFromString("300")))

	newEnd := date(2025, time.January, 15)
	updated, err := m.Update(ctx, UpdateOption{
		SubscriptionID: result.Subscription.ID,
		EndDate:        &newEnd,
	})
	require.NoError(t, err)
	require.Equal(t, 15, updated.Pricing.SubscriptionDays)
	require.True(t, updated.Pricing.FinalPrice.Equal(decimal.RequireFromString("145.16")))
}

func TestMutationsBlockedByPayments(t *testing.T) {
	payments := &fakePayments{}
	m, planManager := testManager(t, payments)
	mealPlan := testPlan(t, planManager, "300")
	ctx := context.Background()

	result, err := m.Create(ctx, CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 1),
		EndDate:    date(2025, time.January, 31),
	})
	require.NoError(t, err)

	payments.inYearRange = true

	newEnd := date(2025, time.January, 15)
	_, err = m.Update(ctx, UpdateOption{
		SubscriptionID: result.Subscription.ID,
		EndDate:        &newEnd,
	})
	require.ErrorIs(t, err, ErrHasPayments)

	_, err = m.Cancel(ctx, result.Subscription.ID)
	require.ErrorIs(t, err, ErrHasPayments)
}

func TestDelete(t *testing.T) {
	payments := &fakePayments{}
	m, planManager := testManager(t, payments)
	mealPlan := testPlan(t, planManager, "300")
	ctx := context.Background()

	require.ErrorIs(t, m.Delete(ctx, "missing"), gorm.ErrRecordNotFound)

	result, err := m.Create(ctx, CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 1),
		EndDate:    date(2025, time.January, 31),
	})
	require.NoError(t, err)

	payments.forSub = true
	require.ErrorIs(t, m.Delete(ctx, result.Subscription.ID), ErrHasPayments)

	payments.forSub = false
	require.NoError(t, m.Delete(ctx, result.Subscription.ID))

	gone, err := m.Get(ctx, result.Subscription.ID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestAutoExtend(t *testing.T) {
	m, planManager := testManager(t, &fakePayments{})
	mealPlan := testPlan(t, planManager, "300")
	ctx := context.Background()

	// full-month January subscription with a percentage discount
	_, err := m.Create(ctx, CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 1),
		EndDate:    date(2025, time.January, 31),
		Discount: &billing.Discount{
			Type:  billing.DiscountPercentage,
			Value: decimal.RequireFromString("10"),
		},
	})
	require.NoError(t, err)

	// mid-month subscription is not eligible
	_, err = m.Create(ctx, CreateOption{
		CustomerID: "cust_2",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 1),
		EndDate:    date(2025, time.January, 20),
	})
	require.NoError(t, err)

	result, err := m.AutoExtend(ctx, 2025, time.February)
	require.NoError(t, err)
	require.Len(t, result.Extended, 1)
	require.Empty(t, result.Skipped)
	require.Empty(t, result.Errors)
	require.Equal(t, "cust_1", result.Extended[0].CustomerID)

	extended, err := m.Get(ctx, result.Extended[0].SubscriptionID)
	require.NoError(t, err)
	require.NotNil(t, extended)
	require.True(t, extended.StartDate.Equal(date(2025, time.February, 1)))
	require.True(t, extended.EndDate.Equal(date(2025, time.February, 28)))
	// the discount carries forward onto the new period
	require.True(t, extended.Pricing.DiscountValue.Equal(decimal.RequireFromString("10")))
	require.True(t, extended.Pricing.FinalPrice.Equal(decimal.RequireFromString("270")))

	// a second run finds the target period already covered
	again, err := m.AutoExtend(ctx, 2025, time.February)
	require.NoError(t, err)
	require.Empty(t, again.Extended)
	require.Len(t, again.Skipped, 1)
}

func TestMarkCompleted(t *testing.T) {
	m, planManager := testManager(t, &fakePayments{})
	mealPlan := testPlan(t, planManager, "300")
	ctx := context.Background()

	past, err := m.Create(ctx, CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2025, time.January, 1),
		EndDate:    date(2025, time.January, 31),
	})
	require.NoError(t, err)

	current, err := m.Create(ctx, CreateOption{
		CustomerID: "cust_1",
		Plan:       mealPlan,
		StartDate:  date(2025, time.March, 1),
		EndDate:    date(2025, time.March, 31),
	})
	require.NoError(t, err)

	flipped, err := m.MarkCompleted(ctx, date(2025, time.March, 15))
	require.NoError(t, err)
	require.Equal(t, int64(1), flipped)

	completed, err := m.Get(ctx, past.Subscription.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)

	active, err := m.Get(ctx, current.Subscription.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, active.Status)
}
