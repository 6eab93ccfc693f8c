package analytics

import "time"

// TopicLeaseRecorded carries one LeaseEvent per policy evaluation.
const TopicLeaseRecorded = "ratelimit.lease"

// Lease outcome reasons. Permitted leases carry an empty reason.
const (
	ReasonGlobalLimiter   = "global_limiter"
	ReasonEndpointLimiter = "endpoint_limiter"
	ReasonLockTimeout     = "lock_timeout"
	ReasonStoreError      = "store_error"
)

// LeaseEvent represents the outcome of evaluating one policy for one request.
type LeaseEvent struct {
	ID         string        `json:"id"`
	Policy     string        `json:"policy"`
	Key        string        `json:"key"`
	Permitted  bool          `json:"permitted"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"durationNs"`
	OccurredAt time.Time     `json:"occurredAt"`
}
