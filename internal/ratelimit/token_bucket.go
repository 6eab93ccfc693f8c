package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// TokenBucketOptions configures a token bucket policy.
type TokenBucketOptions struct {
	Options

	// MaxRequestsPerSecond is the refill rate in tokens per second.
	MaxRequestsPerSecond int64
	// BurstCapacity bounds the number of tokens the bucket can hold.
	// A bucket seen for the first time starts full.
	BurstCapacity int64
	// AccrueDebt takes a token on every request, rejected ones included, so the
	// bucket can go negative. Each evaluation refills floor(elapsed * rate) tokens
	// and restarts the refill clock, dropping any partial token.
	//
	// When false a request is rejected without consuming anything if no whole
	// token is left, and partial tokens carry over to the next evaluation.
	AccrueDebt bool
}

// TokenBucketStrategy admits requests while tokens remain in a bucket that refills
// continuously at a fixed rate.
type TokenBucketStrategy struct {
	store Store
	opts  TokenBucketOptions
}

// NewTokenBucketStrategy creates a token bucket strategy backed by store.
func NewTokenBucketStrategy(store Store, opts TokenBucketOptions) (*TokenBucketStrategy, error) {
	if opts.MaxRequestsPerSecond <= 0 {
		return nil, fmt.Errorf("%w: max requests per second must be positive, got %d",
			ErrInvalidConfig, opts.MaxRequestsPerSecond)
	}

	if opts.BurstCapacity <= 0 {
		return nil, fmt.Errorf("%w: burst capacity must be positive, got %d", ErrInvalidConfig, opts.BurstCapacity)
	}

	opts.Options = opts.Options.withDefaults()

	return &TokenBucketStrategy{
		store: store,
		opts:  opts,
	}, nil
}

// Evaluate refills the bucket for the time elapsed since the last refill and
// tries to take one token from it.
func (s *TokenBucketStrategy) Evaluate(ctx context.Context, key string, asOf time.Time) (Decision, error) {
	var permitted bool

	record, err := s.store.GetAndUpdate(ctx, key, asOf, func(current *Record, asOf time.Time) Record {
		next, ok := s.take(current, asOf)
		permitted = ok

		return next
	})
	if err != nil {
		return Decision{Limit: s.opts.MaxRequestsPerSecond}, err
	}

	return Decision{
		Permitted: permitted,
		Limit:     s.opts.MaxRequestsPerSecond,
		Remaining: max(0, record.TokensAvailable),
		ResetAt:   record.LastRefillTime.Add(time.Second),
	}, nil
}

func (s *TokenBucketStrategy) take(current *Record, asOf time.Time) (Record, bool) {
	next := Record{
		TokensAvailable: s.opts.BurstCapacity,
		LastRefillTime:  asOf,
	}

	if current != nil {
		next = *current
	}

	var permitted bool

	if s.opts.AccrueDebt {
		s.refillToNow(&next, asOf)
		next.TokensAvailable--
		permitted = next.TokensAvailable >= 0
	} else {
		s.refill(&next, asOf)

		if next.TokensAvailable >= 1 {
			next.TokensAvailable--
			permitted = true
		}
	}

	// The record lives exactly as long as the bucket needs to fill up again;
	// once it expires a fresh full bucket is indistinguishable from a refilled one.
	next.CreatedAt = asOf
	next.Expiration = s.fillTime(s.opts.BurstCapacity - next.TokensAvailable)

	return next, permitted
}

// refillToNow adds floor(elapsed seconds * rate) tokens, capped at the burst
// capacity, and sets LastRefillTime to asOf. A clock that moved backwards adds nothing.
func (s *TokenBucketStrategy) refillToNow(r *Record, asOf time.Time) {
	if elapsed := asOf.Sub(r.LastRefillTime); elapsed > 0 {
		r.TokensAvailable = min(r.TokensAvailable+tokensFor(elapsed, s.opts.MaxRequestsPerSecond), s.opts.BurstCapacity)
	}

	r.LastRefillTime = asOf
}

// refill adds floor(elapsed seconds * rate) tokens, capped at the burst capacity.
// LastRefillTime only advances by the time those whole tokens account for, so
// callers arriving faster than one token interval do not starve the bucket.
// A LastRefillTime ahead of asOf is pulled back to asOf without adding tokens.
func (s *TokenBucketStrategy) refill(r *Record, asOf time.Time) {
	elapsed := asOf.Sub(r.LastRefillTime)
	if elapsed <= 0 {
		r.LastRefillTime = asOf

		return
	}

	added := tokensFor(elapsed, s.opts.MaxRequestsPerSecond)

	if added >= s.opts.BurstCapacity-r.TokensAvailable {
		r.TokensAvailable = max(r.TokensAvailable, s.opts.BurstCapacity)
		r.LastRefillTime = asOf

		return
	}

	if added == 0 {
		return
	}

	r.TokensAvailable += added
	r.LastRefillTime = r.LastRefillTime.Add(s.fillTime(added))

	if r.LastRefillTime.After(asOf) {
		r.LastRefillTime = asOf
	}
}

// fillTime returns the time needed to accrue n tokens, rounded up to the nanosecond.
func (s *TokenBucketStrategy) fillTime(n int64) time.Duration {
	if n <= 0 {
		return 0
	}

	rate := s.opts.MaxRequestsPerSecond
	whole := time.Duration(n/rate) * time.Second
	rest := time.Duration((n%rate*int64(time.Second) + rate - 1) / rate)

	return whole + rest
}

func tokensFor(elapsed time.Duration, rate int64) int64 {
	whole := int64(elapsed / time.Second)
	frac := int64(elapsed % time.Second)

	return whole*rate + frac*rate/int64(time.Second)
}

// Options returns the common strategy settings.
func (s *TokenBucketStrategy) Options() Options {
	return s.opts.Options
}

// Config returns the full token bucket configuration.
func (s *TokenBucketStrategy) Config() TokenBucketOptions {
	return s.opts
}
