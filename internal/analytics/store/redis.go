package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/ratelimiter/internal/analytics"
)

// Redis keeps per-policy lease counters in Redis hashes so that every
// consumer instance contributes to one aggregate.
type Redis struct {
	client    *redis.Client
	prefix    string // "rate_limit:stats:" for policy -> counters (hash)
	policySet string // "rate_limit:stats:policies" for known policy names (set)
}

// NewRedis creates a Redis-backed lease aggregate.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client:    client,
		prefix:    "rate_limit:stats:",
		policySet: "rate_limit:stats:policies",
	}
}

func (r *Redis) SaveLease(ctx context.Context, event *analytics.LeaseEvent) error {
	outcome := "rejected"
	if event.Permitted {
		outcome = "accepted"
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.policySet, event.Policy)
	pipe.HIncrBy(ctx, r.prefix+event.Policy, "total", 1)
	pipe.HIncrBy(ctx, r.prefix+event.Policy, outcome, 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save lease for %s: %w", event.Policy, err)
	}

	return nil
}

func (r *Redis) Snapshot(ctx context.Context) ([]analytics.PolicyStats, error) {
	policies, err := r.client.SMembers(ctx, r.policySet).Result()
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}

	slices.Sort(policies)

	out := make([]analytics.PolicyStats, 0, len(policies))

	for _, policy := range policies {
		fields, err := r.client.HGetAll(ctx, r.prefix+policy).Result()
		if err != nil {
			return nil, fmt.Errorf("read stats for %s: %w", policy, err)
		}

		out = append(out, analytics.PolicyStats{
			Policy:   policy,
			Total:    parseCounter(fields["total"]),
			Accepted: parseCounter(fields["accepted"]),
			Rejected: parseCounter(fields["rejected"]),
		})
	}

	return out, nil
}

func parseCounter(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)

	return n
}
