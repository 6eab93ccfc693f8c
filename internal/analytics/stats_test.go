package analytics_test

import (
	"context"
	"sync"
	"testing"

	"github.com/serroba/ratelimiter/internal/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats(t *testing.T) {
	t.Run("counts outcomes per policy", func(t *testing.T) {
		stats := analytics.NewStats()

		stats.Observe(analytics.LeaseEvent{Policy: "fixed", Permitted: true})
		stats.Observe(analytics.LeaseEvent{Policy: "fixed", Permitted: false})
		stats.Observe(analytics.LeaseEvent{Policy: "bucket", Permitted: true})

		snapshot, err := stats.Snapshot(context.Background())

		require.NoError(t, err)
		assert.Equal(t, []analytics.PolicyStats{
			{Policy: "bucket", Total: 1, Accepted: 1},
			{Policy: "fixed", Total: 2, Accepted: 1, Rejected: 1},
		}, snapshot)
	})

	t.Run("empty snapshot", func(t *testing.T) {
		snapshot, err := analytics.NewStats().Snapshot(context.Background())

		require.NoError(t, err)
		assert.Empty(t, snapshot)
	})

	t.Run("is safe for concurrent use", func(t *testing.T) {
		stats := analytics.NewStats()

		var wg sync.WaitGroup

		for range 100 {
			wg.Go(func() {
				_ = stats.SaveLease(context.Background(), &analytics.LeaseEvent{Policy: "p", Permitted: true})
			})
		}

		wg.Wait()

		snapshot, _ := stats.Snapshot(context.Background())
		require.Len(t, snapshot, 1)
		assert.Equal(t, int64(100), snapshot[0].Accepted)
	})
}
