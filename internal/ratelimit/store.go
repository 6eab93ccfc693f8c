package ratelimit

import (
	"context"
	"time"
)

// UpdateFunc computes the next record for a key. current is nil when the store
// has no live record for the key, either because none was ever written or
// because the stored one expired as of asOf.
type UpdateFunc func(current *Record, asOf time.Time) Record

// Store defines the interface for rate limit record storage.
//
// Implementations must run the read, the call to fn and the write as one atomic
// step per key: concurrent callers on the same key never interleave. fn is
// invoked exactly once per successful call and its result is persisted and
// returned. Distinct keys are independent.
type Store interface {
	GetAndUpdate(ctx context.Context, key string, asOf time.Time, fn UpdateFunc) (Record, error)
}
