package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/serroba/ratelimiter/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenBucket(t *testing.T, s ratelimit.Store, opts ratelimit.TokenBucketOptions) *ratelimit.TokenBucketStrategy {
	t.Helper()

	strategy, err := ratelimit.NewTokenBucketStrategy(s, opts)
	require.NoError(t, err)

	return strategy
}

func TestTokenBucketStrategy(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("starts with a full bucket", func(t *testing.T) {
		fake := newFakeStore()
		strategy := newTokenBucket(t, fake, ratelimit.TokenBucketOptions{MaxRequestsPerSecond: 10, BurstCapacity: 3})

		decision, err := strategy.Evaluate(ctx, "client1", t0)

		require.NoError(t, err)
		assert.True(t, decision.Permitted)
		assert.Equal(t, int64(2), decision.Remaining)
		assert.Equal(t, int64(10), decision.Limit)
		assert.Equal(t, t0.Add(time.Second), decision.ResetAt)
	})

	t.Run("rejects once the burst is spent", func(t *testing.T) {
		strategy := newTokenBucket(t, newFakeStore(), ratelimit.TokenBucketOptions{
			MaxRequestsPerSecond: 1, BurstCapacity: 3,
		})

		for i := range 3 {
			decision, err := strategy.Evaluate(ctx, "client1", t0)

			require.NoError(t, err)
			assert.True(t, decision.Permitted, "request %d should be permitted", i+1)
		}

		decision, err := strategy.Evaluate(ctx, "client1", t0)

		require.NoError(t, err)
		assert.False(t, decision.Permitted)
	})

	t.Run("refills floor(elapsed * rate) tokens", func(t *testing.T) {
		fake := newFakeStore()
		fake.seed("client1", ratelimit.Record{
			TokensAvailable: 0,
			LastRefillTime:  t0.Add(-5 * time.Second),
			CreatedAt:       t0.Add(-5 * time.Second),
			Expiration:      time.Minute,
		})
		strategy := newTokenBucket(t, fake, ratelimit.TokenBucketOptions{MaxRequestsPerSecond: 10, BurstCapacity: 100})

		decision, err := strategy.Evaluate(ctx, "client1", t0)

		require.NoError(t, err)
		assert.True(t, decision.Permitted)
		assert.Equal(t, int64(49), fake.get("client1").TokensAvailable)
		assert.Equal(t, t0, fake.get("client1").LastRefillTime)
	})

	t.Run("never refills above the burst capacity", func(t *testing.T) {
		fake := newFakeStore()
		fake.seed("client1", ratelimit.Record{
			TokensAvailable: 2,
			LastRefillTime:  t0.Add(-time.Hour),
			CreatedAt:       t0,
			Expiration:      time.Minute,
		})
		strategy := newTokenBucket(t, fake, ratelimit.TokenBucketOptions{MaxRequestsPerSecond: 10, BurstCapacity: 5})

		decision, err := strategy.Evaluate(ctx, "client1", t0)

		require.NoError(t, err)
		assert.True(t, decision.Permitted)
		assert.Equal(t, int64(4), fake.get("client1").TokensAvailable)
	})

	t.Run("treats a clock moving backwards as no elapsed time", func(t *testing.T) {
		for _, debt := range []bool{false, true} {
			fake := newFakeStore()
			fake.seed("client1", ratelimit.Record{
				TokensAvailable: 1,
				LastRefillTime:  t0.Add(time.Minute),
				CreatedAt:       t0,
				Expiration:      time.Hour,
			})
			strategy := newTokenBucket(t, fake, ratelimit.TokenBucketOptions{
				MaxRequestsPerSecond: 10, BurstCapacity: 5, AccrueDebt: debt,
			})

			decision, err := strategy.Evaluate(ctx, "client1", t0)

			require.NoError(t, err)
			assert.True(t, decision.Permitted, "debt=%v", debt)
			assert.Equal(t, int64(0), fake.get("client1").TokensAvailable, "debt=%v", debt)
			assert.Equal(t, t0, fake.get("client1").LastRefillTime, "debt=%v", debt)
		}
	})

	t.Run("does not go below zero without debt", func(t *testing.T) {
		fake := newFakeStore()
		strategy := newTokenBucket(t, fake, ratelimit.TokenBucketOptions{MaxRequestsPerSecond: 1, BurstCapacity: 1})

		for range 5 {
			_, err := strategy.Evaluate(ctx, "client1", t0)
			require.NoError(t, err)
		}

		assert.Equal(t, int64(0), fake.get("client1").TokensAvailable)
	})

	t.Run("accrues debt on rejected requests when enabled", func(t *testing.T) {
		fake := newFakeStore()
		strategy := newTokenBucket(t, fake, ratelimit.TokenBucketOptions{
			MaxRequestsPerSecond: 1, BurstCapacity: 1, AccrueDebt: true,
		})

		first, _ := strategy.Evaluate(ctx, "client1", t0)
		second, _ := strategy.Evaluate(ctx, "client1", t0)
		third, err := strategy.Evaluate(ctx, "client1", t0)

		require.NoError(t, err)
		assert.True(t, first.Permitted)
		assert.False(t, second.Permitted)
		assert.False(t, third.Permitted)
		assert.Equal(t, int64(-2), fake.get("client1").TokensAvailable)
		assert.Equal(t, int64(0), third.Remaining)

		// Two seconds only pay back the debt; the third brings a usable token.
		later, err := strategy.Evaluate(ctx, "client1", t0.Add(2*time.Second))
		require.NoError(t, err)
		assert.False(t, later.Permitted)
	})

	t.Run("with debt every evaluation restarts the refill clock", func(t *testing.T) {
		fake := newFakeStore()
		strategy := newTokenBucket(t, fake, ratelimit.TokenBucketOptions{
			MaxRequestsPerSecond: 1, BurstCapacity: 1, AccrueDebt: true,
		})

		first, err := strategy.Evaluate(ctx, "client1", t0)
		require.NoError(t, err)
		assert.True(t, first.Permitted)

		second, err := strategy.Evaluate(ctx, "client1", t0.Add(600*time.Millisecond))
		require.NoError(t, err)
		assert.False(t, second.Permitted)
		assert.Equal(t, int64(-1), fake.get("client1").TokensAvailable)
		assert.Equal(t, t0.Add(600*time.Millisecond), fake.get("client1").LastRefillTime)

		// 1.5s since the previous evaluation is worth one token, which only clears the debt.
		third, err := strategy.Evaluate(ctx, "client1", t0.Add(2100*time.Millisecond))
		require.NoError(t, err)
		assert.False(t, third.Permitted)
		assert.Equal(t, int64(-1), fake.get("client1").TokensAvailable)
		assert.Equal(t, t0.Add(2100*time.Millisecond), fake.get("client1").LastRefillTime)
	})

	t.Run("without debt partial tokens carry over", func(t *testing.T) {
		fake := newFakeStore()
		strategy := newTokenBucket(t, fake, ratelimit.TokenBucketOptions{MaxRequestsPerSecond: 1, BurstCapacity: 1})

		first, err := strategy.Evaluate(ctx, "client1", t0)
		require.NoError(t, err)
		assert.True(t, first.Permitted)

		second, err := strategy.Evaluate(ctx, "client1", t0.Add(600*time.Millisecond))
		require.NoError(t, err)
		assert.False(t, second.Permitted)
		assert.Equal(t, t0, fake.get("client1").LastRefillTime)

		third, err := strategy.Evaluate(ctx, "client1", t0.Add(2100*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, third.Permitted)
	})

	t.Run("callers faster than the refill interval still accrue tokens", func(t *testing.T) {
		strategy := newTokenBucket(t, newFakeStore(), ratelimit.TokenBucketOptions{
			MaxRequestsPerSecond: 10, BurstCapacity: 1,
		})

		var permitted int

		// One request every 50ms for two seconds: the bucket yields ten tokens per second.
		for i := range 40 {
			decision, err := strategy.Evaluate(ctx, "client1", t0.Add(time.Duration(i)*50*time.Millisecond))
			require.NoError(t, err)

			if decision.Permitted {
				permitted++
			}
		}

		assert.InDelta(t, 20, permitted, 1)
	})

	t.Run("an expired record behaves like a full bucket", func(t *testing.T) {
		fake := newFakeStore()
		strategy := newTokenBucket(t, fake, ratelimit.TokenBucketOptions{MaxRequestsPerSecond: 2, BurstCapacity: 4})

		for range 4 {
			_, _ = strategy.Evaluate(ctx, "client1", t0)
		}

		record := fake.get("client1")
		assert.Equal(t, int64(0), record.TokensAvailable)
		assert.Equal(t, 2*time.Second, record.Expiration)

		decision, err := strategy.Evaluate(ctx, "client1", t0.Add(3*time.Second))

		require.NoError(t, err)
		assert.True(t, decision.Permitted)
		assert.Equal(t, int64(3), decision.Remaining)
	})

	t.Run("fails closed when the store errors", func(t *testing.T) {
		fake := newFakeStore()
		fake.err = ratelimit.ErrLockTimeout
		strategy := newTokenBucket(t, fake, ratelimit.TokenBucketOptions{MaxRequestsPerSecond: 1, BurstCapacity: 1})

		decision, err := strategy.Evaluate(ctx, "client1", t0)

		require.ErrorIs(t, err, ratelimit.ErrLockTimeout)
		assert.False(t, decision.Permitted)
	})
}

func TestNewTokenBucketStrategy_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts ratelimit.TokenBucketOptions
	}{
		{name: "zero rate", opts: ratelimit.TokenBucketOptions{BurstCapacity: 1}},
		{name: "zero burst", opts: ratelimit.TokenBucketOptions{MaxRequestsPerSecond: 1}},
		{name: "negative burst", opts: ratelimit.TokenBucketOptions{MaxRequestsPerSecond: 1, BurstCapacity: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ratelimit.NewTokenBucketStrategy(newFakeStore(), tt.opts)

			assert.ErrorIs(t, err, ratelimit.ErrInvalidConfig)
		})
	}
}
