package attendance

import "time"

// Meal is the custom type for a daily meal slot
type Meal string

// Defining the meal slots attendance is tracked for
const (
	MealBreakfast Meal = "breakfast"
	MealLunch     Meal = "lunch"
	MealDinner    Meal = "dinner"
)

// Valid reports whether the meal slot is one of the tracked slots
func (m Meal) Valid() bool {
	switch m {
	case MealBreakfast, MealLunch, MealDinner:
		return true
	}
	return false
}

// Attendance records whether a customer received a given meal on a given
// day. One row per customer, date and meal slot.
type Attendance struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	CustomerID     string    `json:"customerId" gorm:"index:idx_attendance_mark,unique"`
	SubscriptionID string    `json:"subscriptionId" gorm:"index"`
	Date           time.Time `json:"date" gorm:"index:idx_attendance_mark,unique"`
	Meal           Meal      `json:"meal" gorm:"index:idx_attendance_mark,unique"`
	Present        bool      `json:"present"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
