package ratelimit

import "github.com/danielgtaylor/huma/v2"

// MetadataKey is the key used to store rate limit config in operation metadata.
const MetadataKey = "rateLimit"

// EndpointConfig defines per-endpoint rate limiting. Attach it to a Huma
// operation through its Metadata field under MetadataKey.
type EndpointConfig struct {
	// Policy names the registered policy for this endpoint. Empty means the
	// registry's default policy, if any.
	Policy string

	// Disabled skips rate limiting entirely, including global policies.
	Disabled bool
}

// Metadata returns an operation metadata map carrying cfg.
func Metadata(cfg EndpointConfig) map[string]any {
	return map[string]any{MetadataKey: cfg}
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	return &cfg
}
