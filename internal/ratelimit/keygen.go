package ratelimit

import "strings"

// Key prefixes used by the built-in generators. Stored records are addressed by
// these prefixes, so changing them orphans existing counters.
const (
	UserKeyPrefix    = "rate_limit:user:"
	IPKeyPrefix      = "rate_limit:ip:"
	ServiceKeyPrefix = "rate_limit:service:"
)

// ServiceIdentifierHeader carries the calling service's identity for ServiceKey.
const ServiceIdentifierHeader = "Service-Identifier"

// RequestAttributes are the request properties key generators may use.
type RequestAttributes struct {
	// UserID is the authenticated identity, empty for anonymous requests.
	UserID string
	// ForwardedFor is the first address of the X-Forwarded-For header.
	ForwardedFor string
	// RemoteIP is the address of the direct peer.
	RemoteIP string
	// ServiceID is the value of the Service-Identifier header.
	ServiceID string
	// Header returns any request header by name. May be nil.
	Header func(name string) string
}

// KeyGenerator derives the partition key a request is counted under.
type KeyGenerator func(attrs RequestAttributes) string

// UserKey keys requests by authenticated user, falling back to the forwarded
// client address for anonymous callers.
func UserKey(attrs RequestAttributes) string {
	if attrs.UserID != "" {
		return UserKeyPrefix + attrs.UserID
	}

	ip := attrs.ForwardedFor
	if ip == "" {
		ip = "unknown"
	}

	return UserKeyPrefix + "anonymous_" + ip
}

// IPKey keys requests by client address, preferring X-Forwarded-For over the peer address.
func IPKey(attrs RequestAttributes) string {
	switch {
	case attrs.ForwardedFor != "":
		return IPKeyPrefix + attrs.ForwardedFor
	case attrs.RemoteIP != "":
		return IPKeyPrefix + attrs.RemoteIP
	default:
		return IPKeyPrefix + "unknown-ip"
	}
}

// ServiceKey keys requests by the caller-supplied service identifier.
func ServiceKey(attrs RequestAttributes) string {
	if attrs.ServiceID == "" {
		return ServiceKeyPrefix + "unknown-service"
	}

	return ServiceKeyPrefix + attrs.ServiceID
}

// HeaderKey keys requests by the value of an arbitrary header. Requests without
// the header share the "anonymous" partition.
func HeaderKey(header, prefix string) KeyGenerator {
	return func(attrs RequestAttributes) string {
		var value string
		if attrs.Header != nil {
			value = strings.TrimSpace(attrs.Header(header))
		}

		if value == "" {
			value = "anonymous"
		}

		return prefix + value
	}
}
