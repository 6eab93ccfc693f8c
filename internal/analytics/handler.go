package analytics

import (
	"context"

	"github.com/serroba/ratelimiter/internal/messaging"
)

// NewLeaseHandler returns a consumer handler that persists lease events to store.
func NewLeaseHandler(store Store) messaging.Handler[LeaseEvent] {
	return func(ctx context.Context, event *LeaseEvent) error {
		return store.SaveLease(ctx, event)
	}
}
