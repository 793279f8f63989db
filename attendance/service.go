package attendance

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	resp "github.com/tiffinlabs/tiffin/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	AttendanceManager *Manager
	Logger            *zap.Logger
}

// Service is the attendance API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the attendance API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.AttendanceManager == nil {
		return nil, fmt.Errorf("nil AttendanceManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// MarkRequest is the model of an admin request to record a meal delivery
type MarkRequest struct {
	CustomerID     string `json:"customerId" validate:"required"`
	SubscriptionID string `json:"subscriptionId"`
	Date           string `json:"date" validate:"required"`
	Meal           string `json:"meal" validate:"required"`
	Present        bool   `json:"present"`
}

func (s *Service) markAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req MarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation().AddMessages(err.Error()))
		return
	}

	day, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid date, expecting YYYY-MM-DD"))
		return
	}

	record, err := s.AttendanceManager.Mark(ctx, MarkOption{
		CustomerID:     req.CustomerID,
		SubscriptionID: req.SubscriptionID,
		Date:           day,
		Meal:           Meal(req.Meal),
		Present:        req.Present,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidMeal) {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
			return
		}
		s.Logger.Error("Unable to mark attendance",
			zap.String("CustomerID", req.CustomerID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to mark attendance"))
		return
	}

	resp.WriteResponse(w, r, record)
}

func (s *Service) listAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid year param"))
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid month param"))
		return
	}

	results, err := s.AttendanceManager.ListByMonth(ctx, customerID, year, time.Month(month))
	if err != nil {
		s.Logger.Error("Unable to list attendance",
			zap.String("CustomerID", customerID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of attendance records"))
		return
	}

	resp.WriteResponse(w, r, results)
}

// Router will return the routes under attendance API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.markAttendance)
	r.Get("/customer/{id}", s.listAttendance)

	return r
}
