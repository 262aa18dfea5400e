package storage

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/receipt-pipeline/internal/event"
)

// ErrNotFound is returned by Get when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// Object is a stored artifact. Data is immutable once written; a Put to the
// same key replaces the object wholesale (overwrite semantics, not append).
type Object struct {
	Key       string
	Data      []byte
	Metadata  map[string]string
	CreatedAt time.Time
}

// Store is the durable key-value blob interface every artifact goes
// through. List is for audit and debugging, never the hot path.
type Store interface {
	Put(ctx context.Context, key string, data []byte, metadata map[string]string) error
	Get(ctx context.Context, key string) (*Object, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// NotifyFunc receives a create notification after a write is durable.
type NotifyFunc func(ev event.ObjectCreated)

// Notifier is implemented by stores that can emit create notifications.
// The hook fires only after the write completes, so a consumer triggered by
// the event always finds the object.
type Notifier interface {
	OnCreate(fn NotifyFunc)
}
