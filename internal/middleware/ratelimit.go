package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ratelimiter/internal/analytics"
	"github.com/serroba/ratelimiter/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// PolicyRateLimiter returns a Huma middleware that applies the registry's
// policies to every request.
//
// Per-endpoint configuration is read from operation metadata under
// ratelimit.MetadataKey. Endpoints may:
//   - Disable rate limiting entirely (Disabled: true), global policies included
//   - Name the policy to apply (Policy: "fixed")
//
// Global policies run first, in registration order. The endpoint's policy, or
// the registry default when it names none, runs last. The first rejection ends
// the request.
func PolicyRateLimiter(
	api huma.API,
	registry *ratelimit.Registry,
	recorder analytics.Recorder,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	l := &policyLimiter{api: api, recorder: recorder, logger: logger}

	return func(ctx huma.Context, next func(huma.Context)) {
		path := getOperationPath(ctx)
		cfg := ratelimit.GetEndpointConfig(ctx)

		if cfg != nil && cfg.Disabled {
			logger.Debug("rate limiting disabled for endpoint",
				zap.String("path", path), zap.String("method", ctx.Method()))
			next(ctx)

			return
		}

		attrs := attributesFor(ctx)

		for _, policy := range registry.Globals() {
			if !l.admit(ctx, policy, attrs, analytics.ReasonGlobalLimiter) {
				return
			}
		}

		if policy, ok := endpointPolicy(registry, cfg, path, logger); ok && !policy.Global {
			if !l.admit(ctx, policy, attrs, analytics.ReasonEndpointLimiter) {
				return
			}
		}

		next(ctx)
	}
}

// endpointPolicy resolves the policy named by cfg, falling back to the
// registry default when cfg is absent, names nothing, or names an unknown policy.
func endpointPolicy(
	registry *ratelimit.Registry,
	cfg *ratelimit.EndpointConfig,
	path string,
	logger *zap.Logger,
) (ratelimit.Policy, bool) {
	if cfg != nil && cfg.Policy != "" {
		if policy, ok := registry.Resolve(cfg.Policy); ok {
			return policy, true
		}

		logger.Warn("unknown rate limit policy, using default",
			zap.String("path", path), zap.String("policy", cfg.Policy))
	}

	return registry.Default()
}

// getOperationPath extracts the path from the operation, if available.
func getOperationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ""
}

type policyLimiter struct {
	api      huma.API
	recorder analytics.Recorder
	logger   *zap.Logger
}

// admit evaluates one policy and writes the response when the request may not
// proceed. Returns true if the request was admitted.
func (l *policyLimiter) admit(
	ctx huma.Context,
	policy ratelimit.Policy,
	attrs ratelimit.RequestAttributes,
	rejectReason string,
) bool {
	opts := policy.Strategy.Options()
	key := opts.KeyGenerator(attrs)
	now := time.Now()

	decision, err := policy.Strategy.Evaluate(ctx.Context(), key, now)

	event := analytics.LeaseEvent{
		Policy:     policy.Name,
		Key:        key,
		Permitted:  err == nil && decision.Permitted,
		Duration:   time.Since(now),
		OccurredAt: now,
	}

	switch {
	case errors.Is(err, ratelimit.ErrLockTimeout):
		event.Reason = analytics.ReasonLockTimeout
		l.recorder.Record(ctx.Context(), event)
		l.logger.Warn("rate limit lock timeout",
			zap.String("policy", policy.Name),
			zap.String("key", key),
			zap.Error(err),
		)
		_ = huma.WriteErr(l.api, ctx, opts.RejectionStatusCode, opts.RejectionMessage)

		return false
	case err != nil:
		event.Reason = analytics.ReasonStoreError
		l.recorder.Record(ctx.Context(), event)
		l.logger.Error("rate limit check failed",
			zap.String("policy", policy.Name),
			zap.String("key", key),
			zap.Error(err),
		)
		_ = huma.WriteErr(l.api, ctx, http.StatusInternalServerError, "internal server error", err)

		return false
	case !decision.Permitted:
		event.Reason = rejectReason
		l.recorder.Record(ctx.Context(), event)
		l.logger.Warn("rate limit exceeded",
			zap.String("policy", policy.Name),
			zap.String("key", key),
			zap.String("method", ctx.Method()),
			zap.Int64("limit", decision.Limit),
		)
		writeDecisionHeaders(ctx, decision)

		if retry := decision.RetryAfter(now); retry > 0 {
			ctx.SetHeader(HeaderRetryAfter, strconv.FormatInt(int64(retry/time.Second), 10))
		}

		_ = huma.WriteErr(l.api, ctx, opts.RejectionStatusCode, opts.RejectionMessage)

		return false
	default:
		l.recorder.Record(ctx.Context(), event)
		writeDecisionHeaders(ctx, decision)

		return true
	}
}

func writeDecisionHeaders(ctx huma.Context, d ratelimit.Decision) {
	ctx.SetHeader(HeaderLimit, strconv.FormatInt(d.Limit, 10))
	ctx.SetHeader(HeaderRemaining, strconv.FormatInt(d.Remaining, 10))
	ctx.SetHeader(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
}
