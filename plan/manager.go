package plan

import (
	"context"
	"errors"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrDuplicateCode is surfaced as a client error when a plan code is taken
var ErrDuplicateCode = errors.New("a meal plan with this code already exists")

// Manager handles the database operations relating to MealPlans
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for meal plans
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&MealPlan{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize plan.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Create will register a new meal plan, rejecting a duplicate code
// before any write occurs
func (m *Manager) Create(ctx context.Context, p *MealPlan) error {
	if existing, err := m.GetByCode(ctx, p.Code); err != nil {
		return err
	} else if existing != nil {
		return ErrDuplicateCode
	}

	p.ID = shortuuid.New()
	p.Active = true
	p.Meals.Normalize()

	result := m.db.WithContext(ctx).Create(p)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create a new MealPlan")
	}
	return nil
}

// GetByID will try to return the meal plan in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*MealPlan, error) {
	return m.getBy(ctx, "id = ?", id)
}

// GetByCode will try to return the meal plan in the database by its code
func (m *Manager) GetByCode(ctx context.Context, code string) (*MealPlan, error) {
	return m.getBy(ctx, "code = ?", code)
}

func (m *Manager) getBy(ctx context.Context, query string, arg interface{}) (*MealPlan, error) {
	var p MealPlan

	result := m.db.WithContext(ctx).First(&p, query, arg)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get meal plan")
	}

	return &p, nil
}

// List will return meal plans, optionally including retired ones
func (m *Manager) List(ctx context.Context, includeRetired bool) ([]MealPlan, error) {
	baseQuery := m.db.WithContext(ctx).Order("created_at desc")
	if !includeRetired {
		baseQuery = baseQuery.Where("active = ?", true)
	}

	results := make([]MealPlan, 0, 1)
	result := baseQuery.Find(&results)

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// Update will persist the mutable fields of an existing meal plan
func (m *Manager) Update(ctx context.Context, p *MealPlan) error {
	if byCode, err := m.GetByCode(ctx, p.Code); err != nil {
		return err
	} else if byCode != nil && byCode.ID != p.ID {
		return ErrDuplicateCode
	}

	p.Meals.Normalize()

	result := m.db.WithContext(ctx).Save(p)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot update meal plan")
	}
	return nil
}

// Retire will mark the plan inactive. Existing subscriptions keep their
// snapshot pricing so retired plans are never deleted.
func (m *Manager) Retire(ctx context.Context, id string) error {
	result := m.db.WithContext(ctx).Model(&MealPlan{}).Where("id = ?", id).Update("active", false)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot retire meal plan")
	}
	return nil
}
