package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/ratelimiter/internal/ratelimit"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	lockSuffix      = ":lock"
	lockTokenLength = 21

	DefaultLockExpiry        = 10 * time.Second
	DefaultLockTimeout       = 5 * time.Second
	DefaultLockRetryInterval = 10 * time.Millisecond
)

var errLockHeld = errors.New("lock held by another owner")

// releaseLockScript deletes the lock only while it still carries our token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockConfig tunes the per-key lock guarding each read-modify-write.
type RedisLockConfig struct {
	// Expiry bounds how long a crashed holder can block a key.
	Expiry time.Duration
	// Timeout is the total time spent trying to acquire before giving up.
	Timeout       time.Duration
	RetryInterval time.Duration
}

func (c RedisLockConfig) withDefaults() RedisLockConfig {
	if c.Expiry <= 0 {
		c.Expiry = DefaultLockExpiry
	}

	if c.Timeout <= 0 {
		c.Timeout = DefaultLockTimeout
	}

	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultLockRetryInterval
	}

	return c
}

// RateLimitRedisStore is a Redis implementation of ratelimit.Store that is
// safe to share between processes.
type RateLimitRedisStore struct {
	client *redis.Client
	lock   RedisLockConfig
	token  func() string
	logger *zap.Logger
}

// NewRateLimitRedisStore creates a Redis-backed rate limit store. Zero lock
// settings fall back to the package defaults.
func NewRateLimitRedisStore(
	client *redis.Client, lock RedisLockConfig, logger *zap.Logger,
) (*RateLimitRedisStore, error) {
	token, err := nanoid.Standard(lockTokenLength)
	if err != nil {
		return nil, fmt.Errorf("lock token generator: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimitRedisStore{
		client: client,
		lock:   lock.withDefaults(),
		token:  token,
		logger: logger,
	}, nil
}

func (r *RateLimitRedisStore) GetAndUpdate(
	ctx context.Context, key string, asOf time.Time, fn ratelimit.UpdateFunc,
) (ratelimit.Record, error) {
	lockKey := key + lockSuffix
	token := r.token()

	if err := r.acquire(ctx, lockKey, token); err != nil {
		return ratelimit.Record{}, err
	}

	defer r.release(context.WithoutCancel(ctx), lockKey, token)

	current, err := r.load(ctx, key, asOf)
	if err != nil {
		return ratelimit.Record{}, err
	}

	next := fn(current, asOf)

	payload, err := encodeRecord(next)
	if err != nil {
		return ratelimit.Record{}, err
	}

	// A zero TTL would persist the key forever.
	ttl := max(next.TTL(asOf), time.Millisecond)

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return ratelimit.Record{}, fmt.Errorf("store record %s: %w", key, err)
	}

	return next, nil
}

func (r *RateLimitRedisStore) acquire(ctx context.Context, lockKey, token string) error {
	backoff := retry.WithMaxDuration(r.lock.Timeout, retry.NewConstant(r.lock.RetryInterval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		acquired, err := r.client.SetNX(ctx, lockKey, token, r.lock.Expiry).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", lockKey, err)
		}

		if !acquired {
			return retry.RetryableError(errLockHeld)
		}

		return nil
	})
	if errors.Is(err, errLockHeld) {
		return fmt.Errorf("%w: %s", ratelimit.ErrLockTimeout, lockKey)
	}

	return err
}

func (r *RateLimitRedisStore) release(ctx context.Context, lockKey, token string) {
	if err := releaseLockScript.Run(ctx, r.client, []string{lockKey}, token).Err(); err != nil {
		r.logger.Warn("failed to release rate limit lock",
			zap.String("lock", lockKey),
			zap.Error(err),
		)
	}
}

func (r *RateLimitRedisStore) load(ctx context.Context, key string, asOf time.Time) (*ratelimit.Record, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", key, err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		r.logger.Warn("discarding unreadable rate limit record",
			zap.String("key", key),
			zap.Error(err),
		)

		return nil, nil
	}

	if record.Expired(asOf) {
		return nil, nil
	}

	return &record, nil
}

// Compile-time check.
var _ ratelimit.Store = (*RateLimitRedisStore)(nil)
