package ratelimit

import (
	"context"
	"net/http"
	"time"
)

// DefaultRejectionMessage is returned to clients when no message is configured.
const DefaultRejectionMessage = "Rate limit exceeded. Please try again later."

// Strategy decides whether a request identified by key may proceed.
type Strategy interface {
	// Evaluate records one request for key at asOf and returns the verdict.
	// When the store fails, the decision is a rejection and the error is returned alongside it.
	Evaluate(ctx context.Context, key string, asOf time.Time) (Decision, error)

	// Options returns the settings shared by every strategy.
	Options() Options
}

// Decision is the outcome of a single evaluation.
type Decision struct {
	Permitted bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RetryAfter returns how long a rejected caller should wait, rounded up to whole seconds.
func (d Decision) RetryAfter(asOf time.Time) time.Duration {
	wait := d.ResetAt.Sub(asOf)
	if wait <= 0 {
		return 0
	}

	return (wait + time.Second - 1) / time.Second * time.Second
}

// Options holds the settings common to all strategies.
type Options struct {
	// KeyGenerator derives the partition key for a request. Defaults to IPKey.
	KeyGenerator KeyGenerator

	// RejectionStatusCode is the HTTP status written for rejected requests. Defaults to 429.
	RejectionStatusCode int

	// RejectionMessage is the body written for rejected requests.
	RejectionMessage string
}

func (o Options) withDefaults() Options {
	if o.KeyGenerator == nil {
		o.KeyGenerator = IPKey
	}

	if o.RejectionStatusCode == 0 {
		o.RejectionStatusCode = http.StatusTooManyRequests
	}

	if o.RejectionMessage == "" {
		o.RejectionMessage = DefaultRejectionMessage
	}

	return o
}
