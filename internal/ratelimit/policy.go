package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"marketplace-gateway/internal/auth"
)

// KeyPrefix namespaces every counter entry in the cache.
const KeyPrefix = "rate_limit"

// BodyStyle selects the extra fields of a 429 body.
type BodyStyle int

const (
	// BodyRetryAfter adds retryAfter (seconds).
	BodyRetryAfter BodyStyle = iota
	// BodyLimitReset adds limit and resetTime (ISO-8601).
	BodyLimitReset
)

// Policy is one admission filter: where its counters live, how the caller
// is identified and what a denial looks like. Policies are built once at
// startup and never mutated.
type Policy struct {
	Name    string
	Prefix  string
	Window  time.Duration
	Limit   int
	Message string
	// Identify returns the counter identity and the limit that applies to
	// it. ok=false lets the request through untouched.
	Identify func(r *http.Request) (identity string, limit int, ok bool)
	// Headers adds X-RateLimit-* to admitted responses.
	Headers bool
	Body    BodyStyle
}

// Key returns the cache key for an identity under this policy.
func (p Policy) Key(identity string) string {
	if p.Prefix == "" {
		return identity
	}
	return p.Prefix + ":" + identity
}

// ClientIP resolves the caller address. With trustProxy the first
// X-Forwarded-For hop wins, then X-Real-IP; otherwise, or when both are
// absent, the connection's remote address is used.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// byIP identifies callers by client address with a fixed limit.
func byIP(limit int, trustProxy bool) func(r *http.Request) (string, int, bool) {
	return func(r *http.Request) (string, int, bool) {
		ip := ClientIP(r, trustProxy)
		return ip, limit, ip != ""
	}
}

// byAPIKey identifies callers by the API key header; requests without a key
// are not this policy's concern.
func byAPIKey(header string, limit int) func(r *http.Request) (string, int, bool) {
	return func(r *http.Request) (string, int, bool) {
		key := strings.TrimSpace(r.Header.Get(header))
		return key, limit, key != ""
	}
}

// byRole identifies callers by role and user id, falling back to the client
// address for guests. Unknown roles get the guest limit.
func byRole(limits map[string]int, trustProxy bool) func(r *http.Request) (string, int, bool) {
	return func(r *http.Request) (string, int, bool) {
		id := auth.IdentityFromContext(r.Context())

		role := id.Role
		limit, ok := limits[role]
		if !ok {
			role = auth.GuestRole
			limit = limits[auth.GuestRole]
		}

		who := id.UserID
		if who == "" {
			who = ClientIP(r, trustProxy)
		}
		return role + ":" + who, limit, limit > 0
	}
}
