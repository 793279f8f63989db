package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	resp "github.com/tiffinlabs/tiffin/response"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	PaymentManager *Manager
	Logger         *zap.Logger
}

// Service is the payment API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the payment API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.PaymentManager == nil {
		return nil, fmt.Errorf("nil PaymentManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID := chi.URLParam(r, "id")

	p, err := s.PaymentManager.GetByID(ctx, paymentID)
	if err != nil {
		s.Logger.Error("Unable to query payment",
			zap.String("PaymentID", paymentID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the payment"))
		return
	}
	if p == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find payment with specific ID"))
		return
	}

	resp.WriteResponse(w, r, p)
}

func parsePeriodQuery(r *http.Request) (int, time.Month, *resp.Error) {
	var year int
	var month time.Month
	if v := r.URL.Query().Get("year"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, resp.ErrBadRequest().AddMessages("Invalid year param")
		}
		year = parsed
	}
	if v := r.URL.Query().Get("month"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 12 {
			return 0, 0, resp.ErrBadRequest().AddMessages("Invalid month param")
		}
		month = time.Month(parsed)
	}
	return year, month, nil
}

func (s *Service) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	year, month, respErr := parsePeriodQuery(r)
	if respErr != nil {
		resp.WriteError(w, r, respErr)
		return
	}

	opt := ListOption{
		CustomerID: r.URL.Query().Get("customerId"),
		Status:     Status(r.URL.Query().Get("status")),
		Year:       year,
		Month:      month,
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

	results, err := s.PaymentManager.List(ctx, opt)
	if err != nil {
		s.Logger.Error("Unable to list payments",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of payments"))
		return
	}

	resp.WriteResponse(w, r, results)
}

// RecordRequest is the model of an admin request to record a received amount
type RecordRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Service) recordPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID := chi.URLParam(r, "id")

	logger := s.Logger.With(zap.String("PaymentID", paymentID))

	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	p, err := s.PaymentManager.RecordPayment(ctx, paymentID, req.Amount)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
			return
		}
		logger.Error("Unable to record payment",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to record payment"))
		return
	}
	if p == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find payment with specific ID"))
		return
	}

	resp.WriteResponse(w, r, p)
}

func (s *Service) backfill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := s.PaymentManager.Backfill(ctx)
	if err != nil {
		s.Logger.Error("Unable to run payment backfill",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to run payment backfill"))
		return
	}

	resp.WriteResponse(w, r, summary)
}

func (s *Service) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	year, month, respErr := parsePeriodQuery(r)
	if respErr != nil {
		resp.WriteError(w, r, respErr)
		return
	}
	if year == 0 || month == 0 {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("year and month params are required"))
		return
	}

	result, err := s.PaymentManager.MonthlySummary(ctx, year, month)
	if err != nil {
		s.Logger.Error("Unable to aggregate payments",
			zap.Int("Year", year),
			zap.Int("Month", int(month)),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to aggregate payments"))
		return
	}

	resp.WriteResponse(w, r, result)
}

// Router will return the routes under payment API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listPayments)
	r.Post("/backfill", s.backfill)
	r.Get("/summary", s.summary)
	r.Get("/{id}", s.getPayment)
	r.Post("/{id}/record", s.recordPayment)

	return r
}
