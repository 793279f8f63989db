package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidMeal is surfaced as a client error on an unknown meal slot
var ErrInvalidMeal = errors.New("meal must be breakfast, lunch or dinner")

// Manager handles the database operations relating to Attendance
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for attendance records
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Attendance{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize attendance.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// MarkOption identifies one meal delivery to record
type MarkOption struct {
	CustomerID     string
	SubscriptionID string
	Date           time.Time
	Meal           Meal
	Present        bool
}

// Mark upserts the attendance record for a customer, date and meal slot
func (m *Manager) Mark(ctx context.Context, opt MarkOption) (*Attendance, error) {
	if len(opt.CustomerID) == 0 {
		return nil, fmt.Errorf("MarkOption.CustomerID is required")
	}
	if !opt.Meal.Valid() {
		return nil, ErrInvalidMeal
	}

	day := time.Date(opt.Date.Year(), opt.Date.Month(), opt.Date.Day(), 0, 0, 0, 0, time.UTC)

	var record Attendance
	result := m.db.WithContext(ctx).
		Where("customer_id = ?", opt.CustomerID).
		Where("date = ?", day).
		Where("meal = ?", opt.Meal).
		First(&record)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		record = Attendance{
			ID:             shortuuid.New(),
			CustomerID:     opt.CustomerID,
			SubscriptionID: opt.SubscriptionID,
			Date:           day,
			Meal:           opt.Meal,
			Present:        opt.Present,
		}
		if err := m.db.WithContext(ctx).Create(&record).Error; err != nil {
			m.logger.Error("Database returned error",
				zap.Error(err),
			)
			return nil, extErrors.Wrap(err, "Cannot create attendance record")
		}
		return &record, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot query attendance record")
	}

	record.Present = opt.Present
	if len(opt.SubscriptionID) > 0 {
		record.SubscriptionID = opt.SubscriptionID
	}
	if err := m.db.WithContext(ctx).Save(&record).Error; err != nil {
		m.logger.Error("Database returned error",
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot update attendance record")
	}
	return &record, nil
}

// ListByMonth returns a customer's attendance for a calendar month,
// oldest first
func (m *Manager) ListByMonth(ctx context.Context, customerID string, year int, month time.Month) ([]Attendance, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	results := make([]Attendance, 0, 1)
	result := m.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Where("date >= ? AND date < ?", from, to).
		Order("date asc").
		Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}
