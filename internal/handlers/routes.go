package handlers

import (
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ratelimiter/internal/ratelimit"
)

// RoutePolicies names the policy each sample endpoint is limited by. An empty
// name uses the registry default.
type RoutePolicies struct {
	Ping       string
	HelloWorld string
	Stats      string
}

func (p RoutePolicies) named() []string {
	var names []string

	for _, name := range []string{p.Ping, p.HelloWorld, p.Stats} {
		if name != "" {
			names = append(names, name)
		}
	}

	return names
}

// RegisterRoutes registers the sample service routes with per-endpoint rate
// limit configuration. Every policy named must exist in registry.
func RegisterRoutes(
	api huma.API,
	registry *ratelimit.Registry,
	policies RoutePolicies,
	h *SampleHandler,
) error {
	if err := registry.Validate(policies.named()...); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	// GET /ping - cheap liveness call, typically under a stricter policy
	huma.Register(api, huma.Operation{
		OperationID: "ping",
		Method:      http.MethodGet,
		Path:        "/ping",
		Summary:     "Ping",
		Tags:        []string{"Sample"},
		Metadata:    ratelimit.Metadata(ratelimit.EndpointConfig{Policy: policies.Ping}),
	}, h.Ping)

	// GET /hello-world
	huma.Register(api, huma.Operation{
		OperationID: "hello-world",
		Method:      http.MethodGet,
		Path:        "/hello-world",
		Summary:     "Hello world",
		Description: "Greets the caller, by name when a User-Identity header is sent.",
		Tags:        []string{"Sample"},
		Metadata:    ratelimit.Metadata(ratelimit.EndpointConfig{Policy: policies.HelloWorld}),
	}, h.HelloWorld)

	// GET /stats - admission counters per policy
	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Rate limit statistics",
		Tags:        []string{"Sample"},
		Metadata:    ratelimit.Metadata(ratelimit.EndpointConfig{Policy: policies.Stats}),
	}, h.Stats)

	return nil
}
