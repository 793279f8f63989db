package customer

import "time"

// Defining the valid status of a Customer
const (
	StatusActive   string = "Active"
	StatusInactive string = "Inactive"
)

// Customer describes a meal-subscription customer
type Customer struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	Email     string    `json:"email" gorm:"uniqueIndex"` // Used for invoices and duplicate detection
	Phone     string    `json:"phone" gorm:"uniqueIndex"` // Delivery contact, one account per number
	Address   string    `json:"address"`                  // Delivery address as free-form text
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
