package subscription

// Status is the custom type to define the current lifecycle state of a subscription
type Status string

// Defining the valid statuses of a Subscription
const (
	StatusActive    Status = "Active"
	StatusPaused    Status = "Paused"
	StatusCancelled Status = "Cancelled"
	StatusCompleted Status = "Completed"
)
