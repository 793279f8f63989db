package plan

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryTime is the custom type for the delivery slot of a meal
type DeliveryTime string

// Defining the valid delivery slots
const (
	DeliveryMorning DeliveryTime = "morning"
	DeliveryNoon    DeliveryTime = "noon"
	DeliveryEvening DeliveryTime = "evening"
)

// MealSetting is the canonical shape of a per-meal configuration. The
// admin frontend historically sent either a bare boolean or the full
// object, so unmarshalling accepts both and everything downstream only
// ever sees this struct.
type MealSetting struct {
	Enabled      bool         `json:"enabled"`
	DeliveryTime DeliveryTime `json:"deliveryTime,omitempty"`
}

// UnmarshalJSON accepts `true`, `false`, or `{"enabled": ..., "deliveryTime": ...}`
func (ms *MealSetting) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("true")) || bytes.Equal(trimmed, []byte("false")) {
		ms.Enabled = bytes.Equal(trimmed, []byte("true"))
		ms.DeliveryTime = ""
		return nil
	}
	type alias MealSetting
	var full alias
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	*ms = MealSetting(full)
	return nil
}

// Meals groups the three daily meal slots of a plan
type Meals struct {
	Breakfast MealSetting `json:"breakfast"`
	Lunch     MealSetting `json:"lunch"`
	Dinner    MealSetting `json:"dinner"`
}

// Normalize fills in the conventional delivery slot for meals that were
// enabled with a bare boolean
func (m *Meals) Normalize() {
	if m.Breakfast.Enabled && m.Breakfast.DeliveryTime == "" {
		m.Breakfast.DeliveryTime = DeliveryMorning
	}
	if m.Lunch.Enabled && m.Lunch.DeliveryTime == "" {
		m.Lunch.DeliveryTime = DeliveryNoon
	}
	if m.Dinner.Enabled && m.Dinner.DeliveryTime == "" {
		m.Dinner.DeliveryTime = DeliveryEvening
	}
}

// Value implements driver.Valuer so Meals persists as a JSON column
func (m Meals) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner for reading the JSON column back
func (m *Meals) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = Meals{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Meals", src)
	}
}

// MealPlan describes a purchasable meal plan
type MealPlan struct {
	ID            string          `json:"id" gorm:"primaryKey"`
	Code          string          `json:"code" gorm:"uniqueIndex"` // Short identifier used by admins (e.g. VEG-2M)
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Currency      string          `json:"currency"`                                 // The ISO currency code (e.g. inr)
	PricePerMonth decimal.Decimal `json:"pricePerMonth" gorm:"type:numeric"`        // Full monthly rate before proration
	Meals         Meals           `json:"meals" gorm:"type:text"`                   // Which meal slots the plan covers
	Active        bool            `json:"active"`                                   // Retired plans stay for historical subscriptions
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
