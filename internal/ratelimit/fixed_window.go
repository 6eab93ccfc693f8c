package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// FixedWindowOptions configures a fixed window policy.
type FixedWindowOptions struct {
	Options

	// PermitLimit is the number of requests admitted per window.
	PermitLimit int64
	// Window is the length of each counting interval.
	Window time.Duration
}

// FixedWindowStrategy counts requests in windows that start at the first request
// for a key and fully reset once the window has elapsed.
type FixedWindowStrategy struct {
	store Store
	opts  FixedWindowOptions
}

// NewFixedWindowStrategy creates a fixed window strategy backed by store.
func NewFixedWindowStrategy(store Store, opts FixedWindowOptions) (*FixedWindowStrategy, error) {
	if opts.PermitLimit <= 0 {
		return nil, fmt.Errorf("%w: permit limit must be positive, got %d", ErrInvalidConfig, opts.PermitLimit)
	}

	if opts.Window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, opts.Window)
	}

	opts.Options = opts.Options.withDefaults()

	return &FixedWindowStrategy{
		store: store,
		opts:  opts,
	}, nil
}

// Evaluate counts the request and permits it while the window count stays within the limit.
// The count grows on rejected requests too, until the window rolls over.
func (s *FixedWindowStrategy) Evaluate(ctx context.Context, key string, asOf time.Time) (Decision, error) {
	record, err := s.store.GetAndUpdate(ctx, key, asOf, s.increment)
	if err != nil {
		return Decision{Limit: s.opts.PermitLimit}, err
	}

	return Decision{
		Permitted: record.Count <= s.opts.PermitLimit,
		Limit:     s.opts.PermitLimit,
		Remaining: max(0, s.opts.PermitLimit-record.Count),
		ResetAt:   record.ExpiresAt(),
	}, nil
}

func (s *FixedWindowStrategy) increment(current *Record, asOf time.Time) Record {
	next := Record{
		CreatedAt:  asOf,
		Expiration: s.opts.Window,
	}

	if current != nil {
		next = *current
	}

	next.Count++

	return next
}

// Options returns the common strategy settings.
func (s *FixedWindowStrategy) Options() Options {
	return s.opts.Options
}

// Config returns the full fixed window configuration.
func (s *FixedWindowStrategy) Config() FixedWindowOptions {
	return s.opts
}
