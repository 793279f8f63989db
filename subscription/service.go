package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tiffinlabs/tiffin/billing"
	"github.com/tiffinlabs/tiffin/customer"
	"github.com/tiffinlabs/tiffin/plan"
	resp "github.com/tiffinlabs/tiffin/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var validate *validator.Validate = validator.New()

const dateLayout = "2006-01-02"

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	CustomerManager     *customer.Manager
	PlanManager         *plan.Manager
	SubscriptionManager *Manager
	Logger              *zap.Logger
}

// Service is the subscription API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the subscription API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.CustomerManager == nil {
		return nil, fmt.Errorf("nil CustomerManager is invalid")
	}
	if option.PlanManager == nil {
		return nil, fmt.Errorf("nil PlanManager is invalid")
	}
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// DiscountRequest is the optional discount block on subscription requests
type DiscountRequest struct {
	Type   string          `json:"type" validate:"required,oneof=percentage fixed"`
	Value  decimal.Decimal `json:"value"`
	Reason string          `json:"reason"`
}

func (d *DiscountRequest) toBilling() *billing.Discount {
	if d == nil {
		return nil
	}
	return &billing.Discount{
		Type:   billing.DiscountType(d.Type),
		Value:  d.Value,
		Reason: d.Reason,
	}
}

// CreateRequest is the model of an admin request to subscribe a customer
type CreateRequest struct {
	CustomerID    string           `json:"customerId" validate:"required"`
	PlanID        string           `json:"planId" validate:"required"`
	StartDate     string           `json:"startDate" validate:"required"`
	EndDate       string           `json:"endDate" validate:"required"`
	Discount      *DiscountRequest `json:"discount"`
	MealOverrides plan.Meals       `json:"mealOverrides"`
}

func parseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, value)
}

func (s *Service) createSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation().AddMessages(err.Error()))
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid startDate, expecting YYYY-MM-DD"))
		return
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid endDate, expecting YYYY-MM-DD"))
		return
	}
	if req.Discount != nil && req.Discount.Value.IsNegative() {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("discount value must not be negative"))
		return
	}

	logger := s.Logger.With(
		zap.String("CustomerID", req.CustomerID),
		zap.String("PlanID", req.PlanID),
	)

	cust, err := s.CustomerManager.GetByID(ctx, req.CustomerID)
	if err != nil {
		logger.Error("Unable to query customer",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the customer"))
		return
	}
	if cust == nil || cust.Status != customer.StatusActive {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find an active customer with specific ID"))
		return
	}

	mealPlan, err := s.PlanManager.GetByID(ctx, req.PlanID)
	if err != nil {
		logger.Error("Unable to query meal plan",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the meal plan"))
		return
	}
	if mealPlan == nil || !mealPlan.Active {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find an active meal plan with specific ID"))
		return
	}

	created, err := s.SubscriptionManager.Create(ctx, CreateOption{
		CustomerID:    cust.ID,
		Plan:          mealPlan,
		StartDate:     startDate,
		EndDate:       endDate,
		Discount:      req.Discount.toBilling(),
		MealOverrides: req.MealOverrides,
	})
	if err != nil {
		s.writeRuleError(w, r, logger, err, "Unable to create subscription")
		return
	}

	if len(created.PaymentError) > 0 {
		resp.WriteResponse(w, r, created)
		return
	}
	resp.WriteResponse(w, r, created.Subscription)
}

// writeRuleError maps reconciliation errors onto the client/server error
// taxonomy
func (s *Service) writeRuleError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidPeriod):
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
	case errors.Is(err, ErrOverlappingPeriod):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
	case errors.Is(err, ErrHasPayments):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
	default:
		logger.Error(fallback,
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages(fallback))
	}
}

func (s *Service) getSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriptionID := chi.URLParam(r, "id")

	sub, err := s.SubscriptionManager.Get(ctx, subscriptionID)
	if err != nil {
		s.Logger.Error("Unable to query subscription",
			zap.String("SubscriptionID", subscriptionID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the subscription"))
		return
	}
	if sub == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID"))
		return
	}

	resp.WriteResponse(w, r, sub)
}

func (s *Service) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opt := ListOption{
		CustomerID: r.URL.Query().Get("customerId"),
		Status:     Status(r.URL.Query().Get("status")),
		Limit:      50,
	}
	if before := r.URL.Query().Get("before"); before != "" {
		parsedTime, err := time.Parse(time.RFC3339Nano, before)
		if err != nil {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid before param"))
			return
		}
		opt.Before = parsedTime
	}

	results, err := s.SubscriptionManager.List(ctx, opt)
	if err != nil {
		s.Logger.Error("Unable to list subscriptions",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of subscriptions"))
		return
	}

	resp.WriteResponse(w, r, results)
}

// UpdateRequest is the model of an admin request to mutate a subscription
type UpdateRequest struct {
	StartDate     *string          `json:"startDate"`
	EndDate       *string          `json:"endDate"`
	Discount      *DiscountRequest `json:"discount"`
	Status        *string          `json:"status"`
	MealOverrides *plan.Meals      `json:"mealOverrides"`
}

func (s *Service) updateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriptionID := chi.URLParam(r, "id")

	logger := s.Logger.With(zap.String("SubscriptionID", subscriptionID))

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	opt := UpdateOption{
		SubscriptionID: subscriptionID,
	}
	if req.StartDate != nil {
		parsed, err := parseDate(*req.StartDate)
		if err != nil {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid startDate, expecting YYYY-MM-DD"))
			return
		}
		opt.StartDate = &parsed
	}
	if req.EndDate != nil {
		parsed, err := parseDate(*req.EndDate)
		if err != nil {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid endDate, expecting YYYY-MM-DD"))
			return
		}
		opt.EndDate = &parsed
	}
	if req.Discount != nil {
		if err := validate.Struct(req.Discount); err != nil {
			resp.WriteError(w, r, resp.ErrValidation().AddMessages(err.Error()))
			return
		}
		opt.Discount = req.Discount.toBilling()
	}
	if req.Status != nil {
		status := Status(*req.Status)
		switch status {
		case StatusActive, StatusPaused:
			opt.Status = &status
		default:
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("status can only be updated to Active or Paused"))
			return
		}
	}
	opt.MealOverrides = req.MealOverrides

	sub, err := s.SubscriptionManager.Update(ctx, opt)
	if err != nil {
		s.writeRuleError(w, r, logger, err, "Unable to update subscription")
		return
	}
	if sub == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID"))
		return
	}

	resp.WriteResponse(w, r, sub)
}

func (s *Service) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriptionID := chi.URLParam(r, "id")

	logger := s.Logger.With(zap.String("SubscriptionID", subscriptionID))

	sub, err := s.SubscriptionManager.Cancel(ctx, subscriptionID)
	if err != nil {
		s.writeRuleError(w, r, logger, err, "Unable to cancel subscription")
		return
	}
	if sub == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID"))
		return
	}

	resp.WriteResponse(w, r, sub)
}

func (s *Service) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriptionID := chi.URLParam(r, "id")

	logger := s.Logger.With(zap.String("SubscriptionID", subscriptionID))

	err := s.SubscriptionManager.Delete(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID"))
			return
		}
		s.writeRuleError(w, r, logger, err, "Unable to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AutoExtendRequest selects the target billing period for auto-extension
type AutoExtendRequest struct {
	Year  int `json:"year" validate:"required,min=2000"`
	Month int `json:"month" validate:"required,min=1,max=12"`
}

func (s *Service) autoExtend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AutoExtendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation().AddMessages(err.Error()))
		return
	}

	summary, err := s.SubscriptionManager.AutoExtend(ctx, req.Year, time.Month(req.Month))
	if err != nil {
		s.Logger.Error("Unable to run auto-extension",
			zap.Int("Year", req.Year),
			zap.Int("Month", req.Month),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to run auto-extension"))
		return
	}

	resp.WriteResponse(w, r, summary)
}

// Router will return the routes under subscription API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.createSubscription)
	r.Get("/", s.listSubscriptions)
	r.Post("/auto-extend", s.autoExtend)
	r.Get("/{id}", s.getSubscription)
	r.Put("/{id}", s.updateSubscription)
	r.Post("/{id}/cancel", s.cancelSubscription)
	r.Delete("/{id}", s.deleteSubscription)

	return r
}
