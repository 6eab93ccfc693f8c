package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serroba/ratelimiter/internal/ratelimit"
	"github.com/serroba/ratelimiter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixedWindow(t *testing.T, s ratelimit.Store, limit int64, window time.Duration) *ratelimit.FixedWindowStrategy {
	t.Helper()

	strategy, err := ratelimit.NewFixedWindowStrategy(s, ratelimit.FixedWindowOptions{
		PermitLimit: limit,
		Window:      window,
	})
	require.NoError(t, err)

	return strategy
}

func TestFixedWindowStrategy(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("permits up to the limit and rejects the next request", func(t *testing.T) {
		strategy := newFixedWindow(t, store.NewRateLimitMemoryStore(), 5, time.Second)

		for i := range 5 {
			decision, err := strategy.Evaluate(context.Background(), "client1", t0)

			require.NoError(t, err)
			assert.True(t, decision.Permitted, "request %d should be permitted", i+1)
		}

		decision, err := strategy.Evaluate(context.Background(), "client1", t0.Add(100*time.Millisecond))

		require.NoError(t, err)
		assert.False(t, decision.Permitted)
		assert.Equal(t, int64(0), decision.Remaining)
		assert.Equal(t, t0.Add(time.Second), decision.ResetAt)
	})

	t.Run("reports remaining permits", func(t *testing.T) {
		strategy := newFixedWindow(t, store.NewRateLimitMemoryStore(), 3, time.Minute)

		decision, err := strategy.Evaluate(context.Background(), "client1", t0)

		require.NoError(t, err)
		assert.Equal(t, int64(3), decision.Limit)
		assert.Equal(t, int64(2), decision.Remaining)
	})

	t.Run("keeps counting rejected requests until the window rolls over", func(t *testing.T) {
		fake := newFakeStore()
		strategy := newFixedWindow(t, fake, 2, time.Second)

		for range 5 {
			_, err := strategy.Evaluate(context.Background(), "client1", t0)
			require.NoError(t, err)
		}

		assert.Equal(t, int64(5), fake.get("client1").Count)
	})

	t.Run("resets the count after the window elapses", func(t *testing.T) {
		fake := newFakeStore()
		strategy := newFixedWindow(t, fake, 2, time.Second)

		for range 3 {
			_, _ = strategy.Evaluate(context.Background(), "client1", t0)
		}

		later := t0.Add(time.Second + time.Millisecond)
		decision, err := strategy.Evaluate(context.Background(), "client1", later)

		require.NoError(t, err)
		assert.True(t, decision.Permitted)
		assert.Equal(t, int64(1), fake.get("client1").Count)
		assert.Equal(t, later, fake.get("client1").CreatedAt)
	})

	t.Run("tracks keys independently", func(t *testing.T) {
		strategy := newFixedWindow(t, store.NewRateLimitMemoryStore(), 1, time.Minute)

		first, _ := strategy.Evaluate(context.Background(), "client1", t0)
		second, _ := strategy.Evaluate(context.Background(), "client1", t0)
		other, err := strategy.Evaluate(context.Background(), "client2", t0)

		require.NoError(t, err)
		assert.True(t, first.Permitted)
		assert.False(t, second.Permitted)
		assert.True(t, other.Permitted, "client2 should have its own window")
	})

	t.Run("fails closed when the store errors", func(t *testing.T) {
		fake := newFakeStore()
		fake.err = ratelimit.ErrLockTimeout
		strategy := newFixedWindow(t, fake, 10, time.Second)

		decision, err := strategy.Evaluate(context.Background(), "client1", t0)

		require.ErrorIs(t, err, ratelimit.ErrLockTimeout)
		assert.False(t, decision.Permitted)
	})
}

func TestFixedWindowStrategy_Concurrent(t *testing.T) {
	strategy := newFixedWindow(t, store.NewRateLimitMemoryStore(), 20, time.Minute)
	now := time.Now()

	var (
		wg        sync.WaitGroup
		permitted atomic.Int64
	)

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			decision, err := strategy.Evaluate(context.Background(), "shared", now)
			if err == nil && decision.Permitted {
				permitted.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(20), permitted.Load())
}

func TestNewFixedWindowStrategy_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts ratelimit.FixedWindowOptions
	}{
		{name: "zero limit", opts: ratelimit.FixedWindowOptions{PermitLimit: 0, Window: time.Second}},
		{name: "negative limit", opts: ratelimit.FixedWindowOptions{PermitLimit: -1, Window: time.Second}},
		{name: "zero window", opts: ratelimit.FixedWindowOptions{PermitLimit: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ratelimit.NewFixedWindowStrategy(newFakeStore(), tt.opts)

			assert.ErrorIs(t, err, ratelimit.ErrInvalidConfig)
		})
	}
}

func TestFixedWindowStrategy_Defaults(t *testing.T) {
	strategy := newFixedWindow(t, newFakeStore(), 1, time.Second)

	opts := strategy.Options()

	assert.Equal(t, 429, opts.RejectionStatusCode)
	assert.Equal(t, ratelimit.DefaultRejectionMessage, opts.RejectionMessage)
	require.NotNil(t, opts.KeyGenerator)
	assert.Equal(t, "rate_limit:ip:10.0.0.1", opts.KeyGenerator(ratelimit.RequestAttributes{RemoteIP: "10.0.0.1"}))
}

func TestFixedWindowStrategy_PropagatesStoreError(t *testing.T) {
	fake := newFakeStore()
	fake.err = errors.New("connection refused")
	strategy := newFixedWindow(t, fake, 1, time.Second)

	_, err := strategy.Evaluate(context.Background(), "k", time.Now())

	assert.EqualError(t, err, "connection refused")
}
