package ratelimit_test

import (
	"testing"

	"github.com/serroba/ratelimiter/internal/ratelimit"
	"github.com/stretchr/testify/assert"
)

func TestKeyGenerators(t *testing.T) {
	t.Parallel()

	headers := map[string]string{"User-Identity": " alice "}
	header := func(name string) string { return headers[name] }

	tests := []struct {
		name      string
		generator ratelimit.KeyGenerator
		attrs     ratelimit.RequestAttributes
		expected  string
	}{
		{
			name:      "user key for authenticated user",
			generator: ratelimit.UserKey,
			attrs:     ratelimit.RequestAttributes{UserID: "testUser", ForwardedFor: "192.168.1.1"},
			expected:  "rate_limit:user:testUser",
		},
		{
			name:      "user key for anonymous user falls back to forwarded ip",
			generator: ratelimit.UserKey,
			attrs:     ratelimit.RequestAttributes{ForwardedFor: "192.168.1.1"},
			expected:  "rate_limit:user:anonymous_192.168.1.1",
		},
		{
			name:      "user key without any address",
			generator: ratelimit.UserKey,
			attrs:     ratelimit.RequestAttributes{},
			expected:  "rate_limit:user:anonymous_unknown",
		},
		{
			name:      "ip key prefers forwarded address",
			generator: ratelimit.IPKey,
			attrs:     ratelimit.RequestAttributes{ForwardedFor: "192.168.1.1", RemoteIP: "10.0.0.1"},
			expected:  "rate_limit:ip:192.168.1.1",
		},
		{
			name:      "ip key falls back to remote address",
			generator: ratelimit.IPKey,
			attrs:     ratelimit.RequestAttributes{RemoteIP: "10.0.0.1"},
			expected:  "rate_limit:ip:10.0.0.1",
		},
		{
			name:      "ip key without any address",
			generator: ratelimit.IPKey,
			attrs:     ratelimit.RequestAttributes{},
			expected:  "rate_limit:ip:unknown-ip",
		},
		{
			name:      "service key",
			generator: ratelimit.ServiceKey,
			attrs:     ratelimit.RequestAttributes{ServiceID: "billing"},
			expected:  "rate_limit:service:billing",
		},
		{
			name:      "service key without identifier",
			generator: ratelimit.ServiceKey,
			attrs:     ratelimit.RequestAttributes{},
			expected:  "rate_limit:service:unknown-service",
		},
		{
			name:      "header key trims the header value",
			generator: ratelimit.HeaderKey("User-Identity", "svc-a:"),
			attrs:     ratelimit.RequestAttributes{Header: header},
			expected:  "svc-a:alice",
		},
		{
			name:      "header key without the header",
			generator: ratelimit.HeaderKey("X-Missing", "svc-a:"),
			attrs:     ratelimit.RequestAttributes{Header: header},
			expected:  "svc-a:anonymous",
		},
		{
			name:      "header key without header accessor",
			generator: ratelimit.HeaderKey("User-Identity", "svc-a:"),
			attrs:     ratelimit.RequestAttributes{},
			expected:  "svc-a:anonymous",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, tt.generator(tt.attrs))
		})
	}
}
