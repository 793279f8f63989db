package customer

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	resp "github.com/tiffinlabs/tiffin/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// Options contains the configuration for Service router
type Options struct {
	CustomerManager *Manager
	Logger          *zap.Logger
}

// Service is the customer API router
type Service struct {
	Options
}

// NewService will create an instance of the customer API router
func NewService(option Options) (*Service, error) {
	if option.CustomerManager == nil {
		return nil, fmt.Errorf("nil CustomerManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		Options: option,
	}, nil
}

// CreateRequest is the model of an admin request to register a customer
type CreateRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required,min=7"`
	Address string `json:"address" validate:"required"`
}

func (s *Service) createCustomer(w http.ResponseWriter, r *http.Request) {
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

	logger := s.Logger.With(zap.String("Email", req.Email))

	cust := &Customer{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	}
	if err := s.CustomerManager.Create(ctx, cust); err != nil {
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicatePhone) {
			resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
			return
		}
		logger.Error("Unable to create Customer",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create customer"))
		return
	}

	resp.WriteResponse(w, r, cust)
}

func (s *Service) getCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")

	cust, err := s.CustomerManager.GetByID(ctx, customerID)
	if err != nil {
		s.Logger.Error("Unable to query customer",
			zap.String("CustomerID", customerID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the customer"))
		return
	}

	if cust == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find customer with specific ID"))
		return
	}

	resp.WriteResponse(w, r, cust)
}

func (s *Service) listCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all := r.URL.Query().Get("all") != ""
	before := r.URL.Query().Get("before")

	var parsedTime time.Time
	if before != "" {
		var err error
		parsedTime, err = time.Parse(time.RFC3339Nano, before)
		if err != nil {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid before param"))
			return
		}
	}

	results, err := s.CustomerManager.List(ctx, ListOption{
		IncludeInactive: all,
		Before:          parsedTime,
		Limit:           50,
	})
	if err != nil {
		s.Logger.Error("Unable to list customers",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of customers"))
		return
	}

	resp.WriteResponse(w, r, results)
}

// UpdateRequest is the model of an admin request to update a customer
type UpdateRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required,min=7"`
	Address string `json:"address" validate:"required"`
}

func (s *Service) updateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")

	logger := s.Logger.With(zap.String("CustomerID", customerID))

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation().AddMessages(err.Error()))
		return
	}

	cust, err := s.CustomerManager.GetByID(ctx, customerID)
	if err != nil {
		logger.Error("Unable to query customer",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the customer"))
		return
	}
	if cust == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find customer with specific ID"))
		return
	}

	cust.Name = req.Name
	cust.Email = req.Email
	cust.Phone = req.Phone
	cust.Address = req.Address

	if err := s.CustomerManager.Update(ctx, cust); err != nil {
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicatePhone) {
			resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
			return
		}
		logger.Error("Unable to update Customer",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to update customer"))
		return
	}

	resp.WriteResponse(w, r, cust)
}

func (s *Service) deactivateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")

	cust, err := s.CustomerManager.GetByID(ctx, customerID)
	if err != nil {
		s.Logger.Error("Unable to query customer",
			zap.String("CustomerID", customerID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the customer"))
		return
	}
	if cust == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find customer with specific ID"))
		return
	}

	if err := s.CustomerManager.Deactivate(ctx, customerID); err != nil {
		s.Logger.Error("Unable to deactivate Customer",
			zap.String("CustomerID", customerID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to deactivate customer"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Router will return the routes under customer API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.createCustomer)
	r.Get("/", s.listCustomers)
	r.Get("/{id}", s.getCustomer)
	r.Put("/{id}", s.updateCustomer)
	r.Delete("/{id}", s.deactivateCustomer)

	return r
}
