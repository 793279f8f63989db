package customer

import (
	"context"
	"errors"
	"time"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Business-rule violations surfaced to the service layer as client errors
var (
	ErrDuplicateEmail = errors.New("a customer with this email already exists")
	ErrDuplicatePhone = errors.New("a customer with this phone number already exists")
)

// Manager handles the database operations relating to Customers
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for customers
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Customer{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize customer.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Create will register a new customer, rejecting duplicate email or phone
// before any write occurs
func (m *Manager) Create(ctx context.Context, cust *Customer) error {
	if existing, err := m.GetByEmail(ctx, cust.Email); err != nil {
		return err
	} else if existing != nil {
		return ErrDuplicateEmail
	}
	if existing, err := m.GetByPhone(ctx, cust.Phone); err != nil {
		return err
	} else if existing != nil {
		return ErrDuplicatePhone
	}

	cust.ID = shortuuid.New()
	cust.Status = StatusActive

	result := m.db.WithContext(ctx).Create(cust)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create a new Customer")
	}

	return nil
}

// GetByID will try to return the customer in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Customer, error) {
	return m.getBy(ctx, "id = ?", id)
}

// GetByEmail will try to return the customer in the database by email address
func (m *Manager) GetByEmail(ctx context.Context, email string) (*Customer, error) {
	return m.getBy(ctx, "email = ?", email)
}

// GetByPhone will try to return the customer in the database by phone number
func (m *Manager) GetByPhone(ctx context.Context, phone string) (*Customer, error) {
	return m.getBy(ctx, "phone = ?", phone)
}

func (m *Manager) getBy(ctx context.Context, query string, arg interface{}) (*Customer, error) {
	var cust Customer

	result := m.db.WithContext(ctx).First(&cust, query, arg)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get customer")
	}

	return &cust, nil
}

// ListOption customizes the List query
type ListOption struct {
	IncludeInactive bool
	Before          time.Time
	Limit           int
}

// List will return customers ordered by creation time, newest first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Customer, error) {
	baseQuery := m.db.WithContext(ctx).Order("created_at desc")
	if !opt.IncludeInactive {
		baseQuery = baseQuery.Where("status = ?", StatusActive)
	}
	if !opt.Before.IsZero() {
		baseQuery = baseQuery.Where("created_at < ?", opt.Before)
	}
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}

	results := make([]Customer, 0, 1)
	result := baseQuery.Find(&results)

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// Update will persist the mutable fields of an existing customer. Email
// and phone stay unique across customers.
func (m *Manager) Update(ctx context.Context, cust *Customer) error {
	if byEmail, err := m.GetByEmail(ctx, cust.Email); err != nil {
		return err
	} else if byEmail != nil && byEmail.ID != cust.ID {
		return ErrDuplicateEmail
	}
	if byPhone, err := m.GetByPhone(ctx, cust.Phone); err != nil {
		return err
	} else if byPhone != nil && byPhone.ID != cust.ID {
		return ErrDuplicatePhone
	}

	result := m.db.WithContext(ctx).Save(cust)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot update customer")
	}
	return nil
}

// Deactivate will mark the customer as inactive without removing history
func (m *Manager) Deactivate(ctx context.Context, id string) error {
	result := m.db.WithContext(ctx).Model(&Customer{}).Where("id = ?", id).Update("status", StatusInactive)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot deactivate customer")
	}
	return nil
}
