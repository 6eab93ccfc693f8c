package store

import (
	"context"

	"github.com/serroba/ratelimiter/internal/analytics"
	"go.uber.org/zap"
)

// Noop is a no-op implementation of analytics.Store that logs events.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new no-op analytics store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveLease(_ context.Context, event *analytics.LeaseEvent) error {
	n.logger.Info("lease event received",
		zap.String("policy", event.Policy),
		zap.String("key", event.Key),
		zap.Bool("permitted", event.Permitted),
		zap.String("reason", event.Reason),
		zap.Duration("duration", event.Duration),
		zap.Time("occurredAt", event.OccurredAt),
	)

	return nil
}
