package broker

import (
	"context"

	"github.com/tiffinlabs/tiffin/event"
)

// Producer defines the interface for publishing billing events via message broker
type Producer interface {
	Close()
	PublishBillingEvent(e *event.BillingEvent) error
}

// Consumer defines the interface for receiving billing events via message broker
type Consumer interface {
	Close()
	ReceiveBillingEvents(ctx context.Context) (<-chan *event.BillingEvent, error)
}
