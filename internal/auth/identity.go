package auth

import (
	"context"
	"net/http"
	"strings"

	"marketplace-gateway/internal/common/logging"
)

// GuestRole is the role of callers without a valid token.
const GuestRole = "guest"

// Identity is who the caller is, as far as admission control cares.
type Identity struct {
	UserID        string `json:"userId,omitempty"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role"`
	Authenticated bool   `json:"authenticated"`
}

var guest = Identity{Role: GuestRole}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity, or a guest identity when
// none was attached.
func IdentityFromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey{}).(Identity); ok {
		return id
	}
	return guest
}

// Middleware attaches the caller identity to the request context. A missing
// or invalid bearer token yields a guest identity; rejecting requests is left
// to the routes that require authentication.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := guest

		if token, ok := BearerToken(r.Header.Get("Authorization")); ok {
			claims, err := a.ValidateJWT(token)
			if err != nil {
				logging.WithContext(r.Context()).Debug("Ignoring invalid bearer token", logging.Err(err))
			} else {
				id = Identity{
					UserID:        claims.UserID,
					Email:         claims.Email,
					Role:          normalizeRole(claims.Role),
					Authenticated: true,
				}
			}
		}

		ctx := WithIdentity(r.Context(), id)
		if id.UserID != "" {
			ctx = logging.ContextWithUserID(ctx, id.UserID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func normalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return GuestRole
	}
	return role
}
