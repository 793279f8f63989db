package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tiffinlabs/tiffin/billing"
	"github.com/tiffinlabs/tiffin/broker"
	"github.com/tiffinlabs/tiffin/event"
	"github.com/tiffinlabs/tiffin/plan"
	"github.com/tiffinlabs/tiffin/subscription"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidAmount is surfaced as a client error on a non-positive amount
var ErrInvalidAmount = errors.New("payment amount must be greater than zero")

// ManagerOptions contains the configuration for payment Manager
type ManagerOptions struct {
	DB          *gorm.DB
	Logger      *zap.Logger
	PlanManager *plan.Manager
	Producer    broker.Producer // optional, billing events are fire-and-forget
}

// Manager handles the database operations relating to Payments
type Manager struct {
	ManagerOptions
}

// Manager satisfies the reconciliation bridge consumed by subscriptions
var _ subscription.PaymentBridge = &Manager{}

// NewManager returns a new Manager for payments
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.PlanManager == nil {
		return nil, fmt.Errorf("nil PlanManager is invalid")
	}
	if err := option.DB.AutoMigrate(&Payment{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize payment.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

func (m *Manager) publish(e *event.BillingEvent) {
	if m.Producer == nil {
		return
	}
	if err := m.Producer.PublishBillingEvent(e); err != nil {
		m.Logger.Warn("Unable to publish billing event",
			zap.String("Type", string(e.Type)),
			zap.Error(err),
		)
	}
}

// paymentFromSubscription synthesizes the derived payment for a
// subscription's pricing snapshot
func paymentFromSubscription(sub *subscription.Subscription, planName string) *Payment {
	return &Payment{
		ID:             shortuuid.New(),
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Month:          sub.Month,
		Year:           sub.Year,
		PlanDetails: PlanDetails{
			PlanID:           sub.PlanID,
			PlanName:         planName,
			MonthlyAmount:    sub.Pricing.BasePricePerMonth,
			ProratedAmount:   sub.Pricing.ProratedAmount,
			FinalAmount:      sub.Pricing.FinalPrice,
			DiscountApplied:  sub.Pricing.DiscountAmount,
			SubscriptionDays: sub.Pricing.SubscriptionDays,
			MonthDays:        sub.Pricing.MonthDays,
			ProratedRatio:    sub.Pricing.ProratedRatio,
			Period:           billing.PeriodString(sub.StartDate, sub.EndDate),
		},
		AmountDue:  sub.Pricing.FinalPrice,
		AmountPaid: decimal.Zero,
		DueDate:    sub.EndDate.AddDate(0, 0, GraceDays),
		Status:     StatusPending,
	}
}

// CreateDerived writes the payment record owed for a freshly persisted
// subscription: amount due is the final quoted price, due five days
// after the period ends
func (m *Manager) CreateDerived(ctx context.Context, sub *subscription.Subscription, planName string) error {
	_, err := m.createDerived(ctx, sub, planName)
	return err
}

func (m *Manager) createDerived(ctx context.Context, sub *subscription.Subscription, planName string) (*Payment, error) {
	p := paymentFromSubscription(sub, planName)

	result := m.DB.WithContext(ctx).Create(p)
	if result.Error != nil {
		m.Logger.Error("Unable to create derived payment in database",
			zap.String("SubscriptionID", sub.ID),
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create derived payment")
	}

	m.publish(&event.BillingEvent{
		Type:           event.TypePaymentCreated,
		CustomerID:     p.CustomerID,
		SubscriptionID: p.SubscriptionID,
		PaymentID:      p.ID,
		PlanID:         p.PlanDetails.PlanID,
		Month:          p.Month,
		Year:           p.Year,
		Amount:         p.AmountDue,
		At:             time.Now(),
	})
	return p, nil
}

// ExistsInYearRange reports whether the customer has any payment whose
// year falls inside the given span. This backs the year-coarse mutation
// guard on subscriptions.
func (m *Manager) ExistsInYearRange(ctx context.Context, customerID string, startYear, endYear int) (bool, error) {
	var count int64
	result := m.DB.WithContext(ctx).Model(&Payment{}).
		Where("customer_id = ?", customerID).
		Where("year >= ? AND year <= ?", startYear, endYear).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// ExistsForSubscription reports whether any payment references the
// subscription
func (m *Manager) ExistsForSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	var count int64
	result := m.DB.WithContext(ctx).Model(&Payment{}).
		Where("subscription_id = ?", subscriptionID).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// GetByID will try to return the payment in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Payment, error) {
	var p Payment
	result := m.DB.WithContext(ctx).First(&p, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return &p, nil
}

// ListOption customizes the List query
type ListOption struct {
	CustomerID string
	Status     Status
	Year       int
	Month      time.Month
	Before     time.Time
	Limit      int
}

// List will return payments ordered by creation time, newest first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Payment, error) {
	baseQuery := m.DB.WithContext(ctx).Order("created_at desc")
	if len(opt.CustomerID) > 0 {
		baseQuery = baseQuery.Where("customer_id = ?", opt.CustomerID)
	}
	if len(opt.Status) > 0 {
		baseQuery = baseQuery.Where("status = ?", opt.Status)
	}
	if opt.Year > 0 {
		baseQuery = baseQuery.Where("year = ?", opt.Year)
	}
	if opt.Month > 0 {
		baseQuery = baseQuery.Where("month = ?", opt.Month)
	}
	if !opt.Before.IsZero() {
		baseQuery = baseQuery.Where("created_at < ?", opt.Before)
	}
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}

	results := make([]Payment, 0, 1)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// RecordPayment adds a received amount onto the payment and re-derives
// its settlement status
func (m *Manager) RecordPayment(ctx context.Context, paymentID string, amount decimal.Decimal) (*Payment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	p, err := m.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	p.AmountPaid = p.AmountPaid.Add(amount)
	p.Status = DeriveStatus(p.AmountDue, p.AmountPaid, p.DueDate, time.Now())

	result := m.DB.WithContext(ctx).Save(p)
	if result.Error != nil {
		m.Logger.Error("Unable to record payment in database",
			zap.String("PaymentID", paymentID),
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot record payment")
	}

	m.publish(&event.BillingEvent{
		Type:           event.TypePaymentRecorded,
		CustomerID:     p.CustomerID,
		SubscriptionID: p.SubscriptionID,
		PaymentID:      p.ID,
		Month:          p.Month,
		Year:           p.Year,
		Amount:         amount,
		At:             time.Now(),
	})
	return p, nil
}

// BackfillOutcome is the per-subscription result of a backfill run
type BackfillOutcome struct {
	SubscriptionID string `json:"subscriptionId"`
	CustomerID     string `json:"customerId"`
	PaymentID      string `json:"paymentId,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Message        string `json:"message,omitempty"`
}

// BackfillResult partitions a backfill run. One failed subscription
// never aborts its siblings.
type BackfillResult struct {
	Created []BackfillOutcome `json:"created"`
	Skipped []BackfillOutcome `json:"skipped"`
	Errors  []BackfillOutcome `json:"errors"`
}

// Backfill synthesizes the missing payment for every active subscription
// that has none, pricing the period through the same quoting path used
// at creation time. Running it twice creates nothing on the second run.
func (m *Manager) Backfill(ctx context.Context) (*BackfillResult, error) {
	subs := make([]subscription.Subscription, 0, 1)
	result := m.DB.WithContext(ctx).
		Where("status = ?", subscription.StatusActive).
		Find(&subs)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot find subscriptions for backfill")
	}

	summary := &BackfillResult{
		Created: make([]BackfillOutcome, 0),
		Skipped: make([]BackfillOutcome, 0, len(subs)),
		Errors:  make([]BackfillOutcome, 0),
	}

	for k := range subs {
		sub := &subs[k]
		outcome := BackfillOutcome{
			SubscriptionID: sub.ID,
			CustomerID:     sub.CustomerID,
		}

		exists, err := m.ExistsForSubscription(ctx, sub.ID)
		if err != nil {
			outcome.Message = err.Error()
			summary.Errors = append(summary.Errors, outcome)
			continue
		}
		if exists {
			outcome.Reason = "payment already exists for this subscription period"
			summary.Skipped = append(summary.Skipped, outcome)
			continue
		}

		planName := "(unknown plan)"
		if mealPlan, err := m.PlanManager.GetByID(ctx, sub.PlanID); err == nil && mealPlan != nil {
			planName = mealPlan.Name
		}

		// re-derive the amounts instead of trusting the snapshot blindly,
		// so a backfilled payment agrees with what creation would have billed
		quote := billing.Quote(sub.Pricing.BasePricePerMonth, sub.StartDate, sub.EndDate, sub.Discount())
		priced := *sub
		priced.Pricing.ProratedAmount = quote.ProratedAmount
		priced.Pricing.DiscountAmount = quote.DiscountAmount
		priced.Pricing.FinalPrice = quote.FinalAmount
		priced.Pricing.SubscriptionDays = quote.SubscriptionDays
		priced.Pricing.MonthDays = quote.MonthDays
		priced.Pricing.ProratedRatio = quote.ProratedRatio

		created, err := m.createDerived(ctx, &priced, planName)
		if err != nil {
			outcome.Message = err.Error()
			summary.Errors = append(summary.Errors, outcome)
			continue
		}

		outcome.PaymentID = created.ID
		summary.Created = append(summary.Created, outcome)
	}

	return summary, nil
}

// MarkOverdue flips unpaid payments past their due date to Overdue and
// emits an event per payment, returning how many changed
func (m *Manager) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	candidates := make([]Payment, 0, 1)
	result := m.DB.WithContext(ctx).
		Where("status IN ?", []Status{StatusPending, StatusPartial}).
		Where("due_date < ?", now).
		Find(&candidates)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return 0, extErrors.Wrap(result.Error, "Cannot find overdue candidates")
	}

	var flipped int64
	for k := range candidates {
		p := &candidates[k]
		update := m.DB.WithContext(ctx).Model(&Payment{}).Where("id = ?", p.ID).Update("status", StatusOverdue)
		if update.Error != nil {
			m.Logger.Error("Unable to mark payment overdue",
				zap.String("PaymentID", p.ID),
				zap.Error(update.Error),
			)
			continue
		}
		flipped += update.RowsAffected

		m.publish(&event.BillingEvent{
			Type:           event.TypePaymentOverdue,
			CustomerID:     p.CustomerID,
			SubscriptionID: p.SubscriptionID,
			PaymentID:      p.ID,
			Month:          p.Month,
			Year:           p.Year,
			Amount:         p.AmountDue.Sub(p.AmountPaid),
			At:             time.Now(),
		})
	}
	return flipped, nil
}

// Summary aggregates a billing period for the admin dashboard
type Summary struct {
	Year        int              `json:"year"`
	Month       time.Month       `json:"month"`
	Payments    int64            `json:"payments"`
	TotalDue    decimal.Decimal  `json:"totalDue"`
	TotalPaid   decimal.Decimal  `json:"totalPaid"`
	Outstanding decimal.Decimal  `json:"outstanding"`
	ByStatus    map[Status]int64 `json:"byStatus"`
}

// MonthlySummary returns the aggregate amounts and status counts for a
// billing period
func (m *Manager) MonthlySummary(ctx context.Context, year int, month time.Month) (*Summary, error) {
	summary := &Summary{
		Year:      year,
		Month:     month,
		TotalDue:  decimal.Zero,
		TotalPaid: decimal.Zero,
		ByStatus:  make(map[Status]int64),
	}

	row := m.DB.WithContext(ctx).Model(&Payment{}).
		Select("COUNT(*), COALESCE(SUM(amount_due), 0), COALESCE(SUM(amount_paid), 0)").
		Where("year = ? AND month = ?", year, month).
		Row()
	if err := row.Scan(&summary.Payments, &summary.TotalDue, &summary.TotalPaid); err != nil {
		m.Logger.Error("Database returned error",
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot aggregate payments")
	}
	summary.Outstanding = summary.TotalDue.Sub(summary.TotalPaid)

	rows, err := m.DB.WithContext(ctx).Model(&Payment{}).
		Select("status, COUNT(*)").
		Where("year = ? AND month = ?", year, month).
		Group("status").
		Rows()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot aggregate payment statuses")
	}
	defer rows.Close()
	for rows.Next() {
		var status Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, extErrors.Wrap(err, "Cannot scan payment status aggregate")
		}
		summary.ByStatus[status] = count
	}

	return summary, nil
}
