package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var errInvalidSweepInterval = errors.New("sweep interval must be positive")

// Sweeper is implemented by stores that reclaim expired records on demand.
type Sweeper interface {
	Sweep(ctx context.Context, asOf time.Time) (int, error)
}

// SweepLoop periodically sweeps a store until shut down.
type SweepLoop struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweepLoop creates a sweep loop. Call Start to begin sweeping.
func NewSweepLoop(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *SweepLoop {
	return &SweepLoop{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the background loop. It is a no-op without a sweeper, which
// is the case for stores that expire records on their own.
func (l *SweepLoop) Start(ctx context.Context) error {
	if l.sweeper == nil {
		return nil
	}

	if l.interval <= 0 {
		return errInvalidSweepInterval
	}

	ctx, l.cancel = context.WithCancel(ctx)

	go l.run(ctx)

	return nil
}

func (l *SweepLoop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := l.sweeper.Sweep(ctx, now)
			if err != nil {
				l.logger.Error("rate limit sweep failed", zap.Error(err))

				continue
			}

			if removed > 0 {
				l.logger.Debug("rate limit sweep", zap.Int("removed", removed))
			}
		}
	}
}

// Shutdown stops the loop and waits for an in-flight sweep to finish.
func (l *SweepLoop) Shutdown() error {
	if l.cancel == nil {
		return nil
	}

	l.cancel()
	<-l.done

	return nil
}
