package event

import (
	"context"
	"time"
)

// ObjectCreated is emitted after an object write becomes durable. Delivery
// is at-least-once: consumers must tolerate duplicates and must not assume
// ordering across keys.
type ObjectCreated struct {
	Bucket     string
	Key        string
	OccurredAt time.Time
}

// Handler processes a single delivery. A returned error means the delivery
// reached a terminal failure inside the handler; the bus never redelivers on
// its own.
type Handler func(ctx context.Context, ev ObjectCreated) error

// Bus decouples object-store notifications from their consumers.
type Bus interface {
	Publish(ctx context.Context, ev ObjectCreated) error
	Subscribe(h Handler)
	Shutdown(ctx context.Context)
}
