package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	resp "github.com/tiffinlabs/tiffin/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// Options contains the configuration for Service router
type Options struct {
	PlanManager *Manager
	Logger      *zap.Logger
}

// Service is the meal plan API router
type Service struct {
	Options
}

// NewService will create an instance of the meal plan API router
func NewService(option Options) (*Service, error) {
	if option.PlanManager == nil {
		return nil, fmt.Errorf("nil PlanManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

// PlanRequest is the model of an admin request to create or update a plan
type PlanRequest struct {
	Code          string          `json:"code" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	Description   string          `json:"description"`
	Currency      string          `json:"currency" validate:"required,len=3"`
	PricePerMonth decimal.Decimal `json:"pricePerMonth" validate:"required"`
	Meals         Meals           `json:"meals"`
}

func (s *Service) createPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation().AddMessages(err.Error()))
		return
	}
	if req.PricePerMonth.IsNegative() {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("pricePerMonth must not be negative"))
		return
	}

	p := &MealPlan{
		Code:          req.Code,
		Name:          req.Name,
		Description:   req.Description,
		Currency:      req.Currency,
		PricePerMonth: req.PricePerMonth,
		Meals:         req.Meals,
	}
	if err := s.PlanManager.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
			return
		}
		s.Logger.Error("Unable to create MealPlan",
			zap.String("Code", req.Code),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create meal plan"))
		return
	}

	resp.WriteResponse(w, r, p)
}

func (s *Service) getPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID := chi.URLParam(r, "id")

	p, err := s.PlanManager.GetByID(ctx, planID)
	if err != nil {
		s.Logger.Error("Unable to query meal plan",
			zap.String("PlanID", planID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the meal plan"))
		return
	}
	if p == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find meal plan with specific ID"))
		return
	}

	resp.WriteResponse(w, r, p)
}

func (s *Service) listPlans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all := r.URL.Query().Get("all") != ""

	results, err := s.PlanManager.List(ctx, all)
	if err != nil {
		s.Logger.Error("Unable to list meal plans",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of meal plans"))
		return
	}

	resp.WriteResponse(w, r, results)
}

func (s *Service) updatePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID := chi.URLParam(r, "id")

	logger := s.Logger.With(zap.String("PlanID", planID))

	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation().AddMessages(err.Error()))
		return
	}
	if req.PricePerMonth.IsNegative() {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("pricePerMonth must not be negative"))
		return
	}

	p, err := s.PlanManager.GetByID(ctx, planID)
	if err != nil {
		logger.Error("Unable to query meal plan",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the meal plan"))
		return
	}
	if p == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find meal plan with specific ID"))
		return
	}

	p.Code = req.Code
	p.Name = req.Name
	p.Description = req.Description
	p.Currency = req.Currency
	p.PricePerMonth = req.PricePerMonth
	p.Meals = req.Meals

	if err := s.PlanManager.Update(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
			return
		}
		logger.Error("Unable to update MealPlan",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to update meal plan"))
		return
	}

	resp.WriteResponse(w, r, p)
}

func (s *Service) retirePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID := chi.URLParam(r, "id")

	p, err := s.PlanManager.GetByID(ctx, planID)
	if err != nil {
		s.Logger.Error("Unable to query meal plan",
			zap.String("PlanID", planID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the meal plan"))
		return
	}
	if p == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find meal plan with specific ID"))
		return
	}

	if err := s.PlanManager.Retire(ctx, planID); err != nil {
		s.Logger.Error("Unable to retire MealPlan",
			zap.String("PlanID", planID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to retire meal plan"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Router will return the routes under meal plan API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.createPlan)
	r.Get("/", s.listPlans)
	r.Get("/{id}", s.getPlan)
	r.Put("/{id}", s.updatePlan)
	r.Delete("/{id}", s.retirePlan)

	return r
}
