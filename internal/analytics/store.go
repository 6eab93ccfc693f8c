package analytics

import "context"

// Store defines the interface for persisting lease events.
type Store interface {
	SaveLease(ctx context.Context, event *LeaseEvent) error
}

// StatsReader reports aggregated lease outcomes per policy.
type StatsReader interface {
	Snapshot(ctx context.Context) ([]PolicyStats, error)
}
