package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/ratelimiter/internal/ratelimit"
)

// lockNotAvailable is the SQLSTATE raised when lock_timeout expires.
const lockNotAvailable = "55P03"

const rateLimitSchema = `
	CREATE TABLE IF NOT EXISTS rate_limit_records (
		key              TEXT PRIMARY KEY,
		count            BIGINT      NOT NULL,
		tokens_available BIGINT      NOT NULL,
		last_refill_time TIMESTAMPTZ NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		expiration_ns    BIGINT      NOT NULL
	)
`

// RateLimitPostgresStore is a PostgreSQL implementation of ratelimit.Store.
// Each update runs in its own transaction under a transaction-scoped
// advisory lock on the key.
type RateLimitPostgresStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRateLimitPostgresStore creates a PostgreSQL-backed rate limit store.
// A zero lockTimeout uses DefaultLockTimeout.
func NewRateLimitPostgresStore(pool *pgxpool.Pool, lockTimeout time.Duration) *RateLimitPostgresStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	return &RateLimitPostgresStore{pool: pool, lockTimeout: lockTimeout}
}

// EnsureSchema creates the records table if it does not exist.
func (p *RateLimitPostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, rateLimitSchema); err != nil {
		return fmt.Errorf("create rate limit schema: %w", err)
	}

	return nil
}

func (p *RateLimitPostgresStore) GetAndUpdate(
	ctx context.Context, key string, asOf time.Time, fn ratelimit.UpdateFunc,
) (ratelimit.Record, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return ratelimit.Record{}, fmt.Errorf("begin: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	setTimeout := fmt.Sprintf("SET LOCAL lock_timeout = %d", max(p.lockTimeout.Milliseconds(), 1))
	if _, err := tx.Exec(ctx, setTimeout); err != nil {
		return ratelimit.Record{}, fmt.Errorf("set lock timeout: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
			return ratelimit.Record{}, fmt.Errorf("%w: %s", ratelimit.ErrLockTimeout, key)
		}

		return ratelimit.Record{}, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	current, err := p.load(ctx, tx, key, asOf)
	if err != nil {
		return ratelimit.Record{}, err
	}

	next := fn(current, asOf)

	query := `
		INSERT INTO rate_limit_records
			(key, count, tokens_available, last_refill_time, created_at, expiration_ns)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			count = EXCLUDED.count,
			tokens_available = EXCLUDED.tokens_available,
			last_refill_time = EXCLUDED.last_refill_time,
			created_at = EXCLUDED.created_at,
			expiration_ns = EXCLUDED.expiration_ns
	`

	_, err = tx.Exec(ctx, query,
		key,
		next.Count,
		next.TokensAvailable,
		next.LastRefillTime,
		next.CreatedAt,
		int64(next.Expiration),
	)
	if err != nil {
		return ratelimit.Record{}, fmt.Errorf("store record %s: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ratelimit.Record{}, fmt.Errorf("commit: %w", err)
	}

	return next, nil
}

func (p *RateLimitPostgresStore) load(
	ctx context.Context, tx pgx.Tx, key string, asOf time.Time,
) (*ratelimit.Record, error) {
	query := `
		SELECT count, tokens_available, last_refill_time, created_at, expiration_ns
		FROM rate_limit_records
		WHERE key = $1
	`

	var (
		record       ratelimit.Record
		expirationNs int64
	)

	err := tx.QueryRow(ctx, query, key).Scan(
		&record.Count,
		&record.TokensAvailable,
		&record.LastRefillTime,
		&record.CreatedAt,
		&expirationNs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("load record %s: %w", key, err)
	}

	record.Expiration = time.Duration(expirationNs)

	if record.Expired(asOf) {
		return nil, nil
	}

	return &record, nil
}

// Sweep deletes rows that expired before asOf.
func (p *RateLimitPostgresStore) Sweep(ctx context.Context, asOf time.Time) (int, error) {
	query := `
		DELETE FROM rate_limit_records
		WHERE created_at + (expiration_ns / 1000) * INTERVAL '1 microsecond' < $1
	`

	tag, err := p.pool.Exec(ctx, query, asOf)
	if err != nil {
		return 0, fmt.Errorf("sweep rate limit records: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// Compile-time check.
var _ ratelimit.Store = (*RateLimitPostgresStore)(nil)
