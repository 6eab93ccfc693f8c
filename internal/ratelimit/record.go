package ratelimit

import "time"

// Record is the persisted state for one rate limit key.
//
// Count is only meaningful for fixed window policies and TokensAvailable only for
// token bucket policies. A record is expired once CreatedAt + Expiration lies
// strictly before the evaluation time.
type Record struct {
	Count           int64
	TokensAvailable int64
	LastRefillTime  time.Time
	CreatedAt       time.Time
	Expiration      time.Duration
}

// ExpiresAt returns the instant after which the record is no longer live.
func (r Record) ExpiresAt() time.Time {
	return r.CreatedAt.Add(r.Expiration)
}

// Expired reports whether the record must be treated as absent at asOf.
func (r Record) Expired(asOf time.Time) bool {
	return r.ExpiresAt().Before(asOf)
}

// TTL returns how long the record stays live after asOf, or zero if it is already expired.
func (r Record) TTL(asOf time.Time) time.Duration {
	return max(0, r.ExpiresAt().Sub(asOf))
}
