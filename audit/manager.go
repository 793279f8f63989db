package audit

import (
	"context"

	"github.com/tiffinlabs/tiffin/event"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to the audit trail
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for audit entries
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize audit.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Record persists one billing event into the trail
func (m *Manager) Record(ctx context.Context, e *event.BillingEvent) error {
	entry := &Entry{
		ID:             shortuuid.New(),
		EventType:      string(e.Type),
		CustomerID:     e.CustomerID,
		SubscriptionID: e.SubscriptionID,
		PaymentID:      e.PaymentID,
		Month:          e.Month,
		Year:           e.Year,
		Amount:         e.Amount,
		OccurredAt:     e.At,
	}
	result := m.db.WithContext(ctx).Create(entry)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot record audit entry")
	}
	return nil
}

// ListRecent returns the newest entries, most recent first
func (m *Manager) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	results := make([]Entry, 0, limit)
	result := m.db.WithContext(ctx).
		Order("occurred_at desc").
		Limit(limit).
		Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}
