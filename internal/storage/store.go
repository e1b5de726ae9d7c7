package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
// Usage counters are never persisted; only the plan directory lives here.
type Store interface {
	Close() error
	Subscriptions() SubscriptionStore
}

// SubscriptionStore manages user → plan assignments.
type SubscriptionStore interface {
	Get(ctx context.Context, userID string) (*Subscription, error)
	List(ctx context.Context) ([]Subscription, error)
	Upsert(ctx context.Context, sub Subscription) error
	Delete(ctx context.Context, userID string) error
}
