package middleware

import (
	"net"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ratelimiter/internal/ratelimit"
)

// UserIdentityHeader carries the caller's user identity for UserKey partitioning.
const UserIdentityHeader = "User-Identity"

// RequestMeta is a middleware that adds the request attributes used for rate
// limit partitioning to the request context.
func RequestMeta(_ huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		attrs := requestAttributes(ctx)

		newCtx := ratelimit.ContextWithAttributes(ctx.Context(), attrs)
		ctx = huma.WithContext(ctx, newCtx)

		next(ctx)
	}
}

// attributesFor returns the attributes stored by RequestMeta, extracting them
// from the request when that middleware did not run.
func attributesFor(ctx huma.Context) ratelimit.RequestAttributes {
	if attrs, ok := ratelimit.AttributesFromContext(ctx.Context()); ok {
		return attrs
	}

	return requestAttributes(ctx)
}

func requestAttributes(ctx huma.Context) ratelimit.RequestAttributes {
	return ratelimit.RequestAttributes{
		UserID:       strings.TrimSpace(ctx.Header(UserIdentityHeader)),
		ForwardedFor: forwardedFor(ctx),
		RemoteIP:     remoteIP(ctx),
		ServiceID:    strings.TrimSpace(ctx.Header(ratelimit.ServiceIdentifierHeader)),
		Header:       ctx.Header,
	}
}

// forwardedFor returns the original client from X-Forwarded-For.
func forwardedFor(ctx huma.Context) string {
	xff := ctx.Header("X-Forwarded-For")
	if idx := strings.Index(xff, ","); idx != -1 {
		return strings.TrimSpace(xff[:idx])
	}

	return strings.TrimSpace(xff)
}

func remoteIP(ctx huma.Context) string {
	if xri := strings.TrimSpace(ctx.Header("X-Real-IP")); xri != "" {
		return xri
	}

	addr := ctx.RemoteAddr()

	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return ip
}
