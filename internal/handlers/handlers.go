// Package handlers implements the HTTP endpoints behind the admission layer.
// Business logic is deliberately thin; the endpoints exist so every filter
// and the brute-force guard sit in front of a real route.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"marketplace-gateway/internal/auth"
	"marketplace-gateway/internal/bruteforce"
	"marketplace-gateway/internal/cache"
	"marketplace-gateway/internal/common/validation"
)

// DefaultMaxUploadBytes bounds multipart bodies on the upload route.
const DefaultMaxUploadBytes = 10 << 20

// StatusFunc reports per-component state for the health endpoint and whether
// every component is fully available.
type StatusFunc func(ctx context.Context) (components map[string]string, healthy bool)

// LockoutAdmin is the part of the brute-force guard exposed to operators.
type LockoutAdmin interface {
	Check(ctx context.Context, identifier string) bruteforce.Status
	Reset(ctx context.Context, identifier string) bool
}

type Handlers struct {
	auth           *auth.Auth
	credentials    auth.CredentialChecker
	cache          *cache.Facade
	lockouts       LockoutAdmin
	validator      *validation.Validator
	status         StatusFunc
	adminToken     string
	maxUploadBytes int64
}

// Deps collects what the handlers need.
type Deps struct {
	Auth           *auth.Auth
	Credentials    auth.CredentialChecker
	Cache          *cache.Facade
	Lockouts       LockoutAdmin
	Validator      *validation.Validator
	Status         StatusFunc
	AdminToken     string
	MaxUploadBytes int64
}

func New(deps Deps) *Handlers {
	h := &Handlers{
		auth:           deps.Auth,
		credentials:    deps.Credentials,
		cache:          deps.Cache,
		lockouts:       deps.Lockouts,
		validator:      deps.Validator,
		status:         deps.Status,
		adminToken:     deps.AdminToken,
		maxUploadBytes: deps.MaxUploadBytes,
	}
	if h.validator == nil {
		h.validator = validation.New()
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = DefaultMaxUploadBytes
	}
	if h.status == nil {
		h.status = func(context.Context) (map[string]string, bool) { return nil, true }
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"status":  "error",
		"message": message,
	})
}
