package ratelimit

import "context"

type attributesKey struct{}

// ContextWithAttributes returns a copy of ctx carrying attrs.
func ContextWithAttributes(ctx context.Context, attrs RequestAttributes) context.Context {
	return context.WithValue(ctx, attributesKey{}, attrs)
}

// AttributesFromContext returns the request attributes stored in ctx, if any.
func AttributesFromContext(ctx context.Context) (RequestAttributes, bool) {
	attrs, ok := ctx.Value(attributesKey{}).(RequestAttributes)

	return attrs, ok
}
