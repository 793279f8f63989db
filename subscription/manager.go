package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tiffinlabs/tiffin/billing"
	"github.com/tiffinlabs/tiffin/broker"
	"github.com/tiffinlabs/tiffin/event"
	"github.com/tiffinlabs/tiffin/plan"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Business-rule violations surfaced to the service layer as client errors
var (
	ErrInvalidPeriod     = errors.New("subscription end date must not be before its start date")
	ErrOverlappingPeriod = errors.New("subscription dates overlap an existing subscription for this customer")
	ErrHasPayments       = errors.New("payment records exist for this period and the subscription can no longer be modified")
)

// PaymentBridge is the slice of the payment layer the reconciliation
// rules need: deriving a payment from a persisted subscription and
// answering existence checks for the mutation guard
type PaymentBridge interface {
	CreateDerived(ctx context.Context, sub *Subscription, planName string) error
	ExistsInYearRange(ctx context.Context, customerID string, startYear, endYear int) (bool, error)
	ExistsForSubscription(ctx context.Context, subscriptionID string) (bool, error)
}

// ManagerOptions contains the configuration for subscription Manager
type ManagerOptions struct {
	DB          *gorm.DB
	Logger      *zap.Logger
	PlanManager *plan.Manager
	Payments    PaymentBridge
	Producer    broker.Producer // optional, billing events are fire-and-forget
}

// Manager handles the database operations and reconciliation rules
// relating to Subscriptions
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for subscriptions
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
	if option.Payments == nil {
		return nil, fmt.Errorf("nil Payments is invalid")
	}
	if err := option.DB.AutoMigrate(&Subscription{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize subscription.Manager")
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

// CreateOption describes a new subscription request after the service
// layer resolved the customer and the meal plan
type CreateOption struct {
	CustomerID    string
	Plan          *plan.MealPlan
	StartDate     time.Time
	EndDate       time.Time
	Discount      *billing.Discount
	MealOverrides plan.Meals
}

// CreateResult carries the persisted subscription plus the outcome of
// the derived payment. A failed payment does not fail the creation; the
// error is reported here instead.
type CreateResult struct {
	Subscription *Subscription `json:"subscription"`
	PaymentError string        `json:"paymentError,omitempty"`
}

// Create will price the period, reject overlapping date ranges for the
// customer, persist the subscription, and derive its payment record.
// The overlap check and the insert run inside one serializable
// transaction so two racing requests cannot both pass the check.
func (m *Manager) Create(ctx context.Context, opt CreateOption) (*CreateResult, error) {
	return m.create(ctx, opt, event.TypeSubscriptionCreated)
}

func (m *Manager) create(ctx context.Context, opt CreateOption, evType event.Type) (*CreateResult, error) {
	if len(opt.CustomerID) == 0 {
		return nil, fmt.Errorf("CreateOption.CustomerID is required")
	}
	if opt.Plan == nil {
		return nil, fmt.Errorf("CreateOption.Plan is required")
	}

	start := normalizeDate(opt.StartDate)
	end := normalizeDate(opt.EndDate)
	if end.Before(start) {
		return nil, ErrInvalidPeriod
	}

	quote := billing.Quote(opt.Plan.PricePerMonth, start, end, opt.Discount)

	overrides := opt.MealOverrides
	overrides.Normalize()

	sub := &Subscription{
		ID:            shortuuid.New(),
		CustomerID:    opt.CustomerID,
		PlanID:        opt.Plan.ID,
		Month:         start.Month(),
		Year:          start.Year(),
		StartDate:     start,
		EndDate:       end,
		Pricing:       pricingFromQuote(quote, opt.Discount),
		Status:        StatusActive,
		MealOverrides: overrides,
	}

	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Subscription{}).
			Where("customer_id = ?", sub.CustomerID).
			Where("start_date <= ? AND end_date >= ?", sub.EndDate, sub.StartDate).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrOverlappingPeriod
		}
		return tx.Create(sub).Error
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		if errors.Is(err, ErrOverlappingPeriod) {
			return nil, err
		}
		m.Logger.Error("Unable to create new subscription in database",
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot create subscription")
	}

	m.publish(&event.BillingEvent{
		Type:           evType,
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		Month:          sub.Month,
		Year:           sub.Year,
		Amount:         sub.Pricing.FinalPrice,
		At:             time.Now(),
	})

	result := &CreateResult{
		Subscription: sub,
	}

	// partial-failure semantics: the subscription stands even when its
	// derived payment could not be written
	if err := m.Payments.CreateDerived(ctx, sub, opt.Plan.Name); err != nil {
		m.Logger.Error("Unable to create derived payment for subscription",
			zap.String("SubscriptionID", sub.ID),
			zap.String("CustomerID", sub.CustomerID),
			zap.Error(err),
		)
		result.PaymentError = err.Error()
	}

	return result, nil
}

// Get will try to return the subscription in the database by id
func (m *Manager) Get(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub Subscription
	result := m.DB.WithContext(ctx).First(&sub, "id = ?", subscriptionID)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return &sub, nil
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

// List will return subscriptions ordered by creation time, newest first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Subscription, error) {
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

	results := make([]Subscription, 0, 1)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// guardMutation enforces the payment immutability rule: once any payment
// exists for the customer with a year inside the subscription's span,
// the subscription is frozen. The guard is deliberately year-coarse.
func (m *Manager) guardMutation(ctx context.Context, sub *Subscription) error {
	blocked, err := m.Payments.ExistsInYearRange(ctx, sub.CustomerID, sub.StartDate.Year(), sub.EndDate.Year())
	if err != nil {
		return extErrors.Wrap(err, "Cannot check payment records for subscription")
	}
	if blocked {
		return ErrHasPayments
	}
	return nil
}

// UpdateOption describes a mutation of an existing subscription. Nil
// pointer fields are left unchanged.
type UpdateOption struct {
	SubscriptionID string
	StartDate      *time.Time
	EndDate        *time.Time
	Discount       *billing.Discount
	Status         *Status
	MealOverrides  *plan.Meals
}

// Update will mutate a subscription that is not yet frozen by payments.
// Date changes are re-checked for overlap (excluding the subscription
// itself) and repriced from the snapshotted base price.
func (m *Manager) Update(ctx context.Context, opt UpdateOption) (*Subscription, error) {
	sub, err := m.Get(ctx, opt.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}

	if err := m.guardMutation(ctx, sub); err != nil {
		return nil, err
	}

	start := sub.StartDate
	end := sub.EndDate
	if opt.StartDate != nil {
		start = normalizeDate(*opt.StartDate)
	}
	if opt.EndDate != nil {
		end = normalizeDate(*opt.EndDate)
	}
	if end.Before(start) {
		return nil, ErrInvalidPeriod
	}

	discount := sub.Discount()
	if opt.Discount != nil {
		discount = opt.Discount
	}

	reprice := !start.Equal(sub.StartDate) || !end.Equal(sub.EndDate) || opt.Discount != nil
	if reprice {
		quote := billing.Quote(sub.Pricing.BasePricePerMonth, start, end, discount)
		sub.Pricing = pricingFromQuote(quote, discount)
	}
	sub.StartDate = start
	sub.EndDate = end
	sub.Month = start.Month()
	sub.Year = start.Year()

	if opt.Status != nil {
		sub.Status = *opt.Status
	}
	if opt.MealOverrides != nil {
		overrides := *opt.MealOverrides
		overrides.Normalize()
		sub.MealOverrides = overrides
	}

	err = m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Subscription{}).
			Where("customer_id = ?", sub.CustomerID).
			Where("id <> ?", sub.ID).
			Where("start_date <= ? AND end_date >= ?", sub.EndDate, sub.StartDate).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrOverlappingPeriod
		}
		return tx.Save(sub).Error
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		if errors.Is(err, ErrOverlappingPeriod) {
			return nil, err
		}
		m.Logger.Error("Unable to update subscription in database",
			zap.String("SubscriptionID", sub.ID),
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot update subscription")
	}

	return sub, nil
}

// Cancel will mark a subscription cancelled unless payments freeze it
func (m *Manager) Cancel(ctx context.Context, subscriptionID string) (*Subscription, error) {
	sub, err := m.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}

	if err := m.guardMutation(ctx, sub); err != nil {
		return nil, err
	}

	result := m.DB.WithContext(ctx).Model(&Subscription{}).Where("id = ?", subscriptionID).Update("status", StatusCancelled)
	if result.Error != nil {
		m.Logger.Error("Unable to mark subscription as cancelled in database",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot cancel subscription")
	}
	sub.Status = StatusCancelled
	return sub, nil
}

// Delete will remove a subscription that has no payment records at all.
// Payments are never cascade-deleted; their existence blocks this.
func (m *Manager) Delete(ctx context.Context, subscriptionID string) error {
	sub, err := m.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return gorm.ErrRecordNotFound
	}

	if err := m.guardMutation(ctx, sub); err != nil {
		return err
	}
	referenced, err := m.Payments.ExistsForSubscription(ctx, subscriptionID)
	if err != nil {
		return extErrors.Wrap(err, "Cannot check payment records for subscription")
	}
	if referenced {
		return ErrHasPayments
	}

	result := m.DB.WithContext(ctx).Delete(&Subscription{}, "id = ?", subscriptionID)
	if result.Error != nil {
		m.Logger.Error("Unable to delete subscription in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot delete subscription")
	}
	return nil
}

// BatchOutcome is the per-item result of a batch operation
type BatchOutcome struct {
	SourceSubscriptionID string `json:"sourceSubscriptionId,omitempty"`
	SubscriptionID       string `json:"subscriptionId,omitempty"`
	CustomerID           string `json:"customerId"`
	PlanID               string `json:"planId,omitempty"`
	Reason               string `json:"reason,omitempty"`
	Message              string `json:"message,omitempty"`
}

// AutoExtendResult partitions an auto-extension run. One failed
// candidate never aborts its siblings.
type AutoExtendResult struct {
	Extended []BatchOutcome `json:"extended"`
	Skipped  []BatchOutcome `json:"skipped"`
	Errors   []BatchOutcome `json:"errors"`
}

// AutoExtend rolls full-month subscriptions from the month before the
// target period into the target month. Only subscriptions whose end date
// is exactly the last calendar day of the source month are eligible; a
// subscription ending mid-month is not extended.
func (m *Manager) AutoExtend(ctx context.Context, targetYear int, targetMonth time.Month) (*AutoExtendResult, error) {
	srcYear, srcMonth := billing.PreviousMonth(targetYear, targetMonth)
	lastDay := billing.LastDayOfMonth(srcYear, srcMonth)

	candidates := make([]Subscription, 0, 1)
	result := m.DB.WithContext(ctx).
		Where("status = ?", StatusActive).
		Where("end_date = ?", lastDay).
		Find(&candidates)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot find candidates for auto-extension")
	}

	summary := &AutoExtendResult{
		Extended: make([]BatchOutcome, 0, len(candidates)),
		Skipped:  make([]BatchOutcome, 0),
		Errors:   make([]BatchOutcome, 0),
	}

	targetStart := billing.FirstDayOfMonth(targetYear, targetMonth)
	targetEnd := billing.LastDayOfMonth(targetYear, targetMonth)

	for _, src := range candidates {
		if !src.endsOnLastDayOfMonth(srcYear, srcMonth) {
			continue
		}
		outcome := BatchOutcome{
			SourceSubscriptionID: src.ID,
			CustomerID:           src.CustomerID,
			PlanID:               src.PlanID,
		}

		var existing int64
		if err := m.DB.WithContext(ctx).Model(&Subscription{}).
			Where("customer_id = ?", src.CustomerID).
			Where("plan_id = ?", src.PlanID).
			Where("year = ? AND month = ?", targetYear, targetMonth).
			Count(&existing).Error; err != nil {
			outcome.Message = err.Error()
			summary.Errors = append(summary.Errors, outcome)
			continue
		}
		if existing > 0 {
			outcome.Reason = "subscription already exists for the target period"
			summary.Skipped = append(summary.Skipped, outcome)
			continue
		}

		mealPlan, err := m.PlanManager.GetByID(ctx, src.PlanID)
		if err != nil {
			outcome.Message = err.Error()
			summary.Errors = append(summary.Errors, outcome)
			continue
		}
		if mealPlan == nil {
			outcome.Message = "meal plan no longer exists"
			summary.Errors = append(summary.Errors, outcome)
			continue
		}

		created, err := m.create(ctx, CreateOption{
			CustomerID:    src.CustomerID,
			Plan:          mealPlan,
			StartDate:     targetStart,
			EndDate:       targetEnd,
			Discount:      src.Discount(),
			MealOverrides: src.MealOverrides,
		}, event.TypeSubscriptionExtended)
		if errors.Is(err, ErrOverlappingPeriod) {
			outcome.Reason = "customer already has an overlapping subscription in the target period"
			summary.Skipped = append(summary.Skipped, outcome)
			continue
		}
		if err != nil {
			outcome.Message = err.Error()
			summary.Errors = append(summary.Errors, outcome)
			continue
		}

		outcome.SubscriptionID = created.Subscription.ID
		if len(created.PaymentError) > 0 {
			outcome.Message = "derived payment failed: " + created.PaymentError
		}
		summary.Extended = append(summary.Extended, outcome)
	}

	return summary, nil
}

// MarkCompleted flips active subscriptions whose period has fully passed
// to Completed, returning how many rows changed
func (m *Manager) MarkCompleted(ctx context.Context, now time.Time) (int64, error) {
	result := m.DB.WithContext(ctx).Model(&Subscription{}).
		Where("status = ?", StatusActive).
		Where("end_date < ?", normalizeDate(now)).
		Update("status", StatusCompleted)
	if result.Error != nil {
		m.Logger.Error("Unable to mark subscriptions as completed",
			zap.Error(result.Error),
		)
		return 0, extErrors.Wrap(result.Error, "Cannot mark subscriptions completed")
	}
	return result.RowsAffected, nil
}
