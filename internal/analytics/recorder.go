package analytics

import (
	"context"

	"github.com/google/uuid"
	"github.com/serroba/ratelimiter/internal/messaging"
	"go.uber.org/zap"
)

// Recorder is the sink the rate limiting middleware reports leases to.
type Recorder interface {
	Record(ctx context.Context, event LeaseEvent)
}

// LeaseRecorder folds every lease into a local aggregate and, when a publish
// function is configured, forwards it to the event bus.
type LeaseRecorder struct {
	stats   *Stats
	publish messaging.Publish[LeaseEvent]
	logger  *zap.Logger
}

// NewLeaseRecorder creates a recorder. publish may be nil to keep events local.
func NewLeaseRecorder(stats *Stats, publish messaging.Publish[LeaseEvent], logger *zap.Logger) *LeaseRecorder {
	return &LeaseRecorder{
		stats:   stats,
		publish: publish,
		logger:  logger,
	}
}

// Record never fails the request: publish errors are only logged.
func (r *LeaseRecorder) Record(ctx context.Context, event LeaseEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	r.stats.Observe(event)

	if r.publish == nil {
		return
	}

	if err := r.publish(context.WithoutCancel(ctx), &event); err != nil {
		r.logger.Error("failed to publish lease event",
			zap.String("policy", event.Policy),
			zap.Error(err),
		)
	}
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, LeaseEvent) {}
