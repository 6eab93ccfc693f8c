package store_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serroba/ratelimiter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (c *countingSweeper) Sweep(context.Context, time.Time) (int, error) {
	c.calls.Add(1)

	return 1, nil
}

func TestSweepLoop(t *testing.T) {
	t.Run("sweeps on every tick until shutdown", func(t *testing.T) {
		sweeper := &countingSweeper{}
		loop := store.NewSweepLoop(sweeper, 5*time.Millisecond, zap.NewNop())

		require.NoError(t, loop.Start(context.Background()))

		assert.Eventually(t, func() bool {
			return sweeper.calls.Load() >= 3
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, loop.Shutdown())

		after := sweeper.calls.Load()
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, after, sweeper.calls.Load(), "no sweeps after shutdown")
	})

	t.Run("rejects non-positive interval", func(t *testing.T) {
		loop := store.NewSweepLoop(&countingSweeper{}, 0, zap.NewNop())

		require.Error(t, loop.Start(context.Background()))
		require.NoError(t, loop.Shutdown())
	})

	t.Run("without a sweeper start and shutdown are no-ops", func(t *testing.T) {
		loop := store.NewSweepLoop(nil, time.Millisecond, zap.NewNop())

		require.NoError(t, loop.Start(context.Background()))
		require.NoError(t, loop.Shutdown())
	})

	t.Run("sweeps the memory store", func(t *testing.T) {
		s := store.NewRateLimitMemoryStore()
		_, _ = s.GetAndUpdate(context.Background(), "old", time.Now().Add(-time.Hour), increment(time.Second))

		loop := store.NewSweepLoop(s, 5*time.Millisecond, zap.NewNop())
		require.NoError(t, loop.Start(context.Background()))

		defer func() { _ = loop.Shutdown() }()

		assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	})
}
