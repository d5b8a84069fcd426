package handlers

import (
	"crypto/subtle"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"marketplace-gateway/internal/auth"
	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/common/validation"
)

// AdminTokenHeader carries the operator token for /api/admin routes.
const AdminTokenHeader = "X-Admin-Token"

// RequireAdmin guards operator routes with ADMIN_TOKEN, sent either in
// X-Admin-Token or as a bearer token. With no token configured the routes are
// disabled.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken == "" {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}

		presented := r.Header.Get(AdminTokenHeader)
		if presented == "" {
			presented, _ = auth.BearerToken(r.Header.Get("Authorization"))
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "Admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FlushCache empties the cache store, resetting every counter and lockout.
// @Summary Flush cache
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/admin/cache/flush [post]
func (h *Handlers) FlushCache(w http.ResponseWriter, r *http.Request) {
	if !h.cache.FlushAll(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "Cache store unavailable")
		return
	}
	logging.WithContext(r.Context()).Info("Cache flushed by operator")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}

// InvalidateCache deletes every key matching ?pattern=.
// @Summary Invalidate cache keys
// @Tags admin
// @Produce json
// @Param pattern query string true "Glob pattern, e.g. rate_limit:general:*"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/admin/cache/invalidate [post]
func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	req := validation.InvalidateRequest{Pattern: r.URL.Query().Get("pattern")}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.cache.DeleteByPattern(r.Context(), req.Pattern) {
		writeError(w, http.StatusServiceUnavailable, "Cache store unavailable")
		return
	}
	logging.WithContext(r.Context()).Info("Cache invalidated by operator",
		logging.String("pattern", req.Pattern))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"pattern": req.Pattern,
	})
}

// GetLockout reports the brute-force state of an email.
// @Summary Inspect lockout
// @Tags admin
// @Produce json
// @Param email path string true "Login email"
// @Success 200 {object} map[string]interface{}
// @Router /api/admin/lockouts/{email} [get]
func (h *Handlers) GetLockout(w http.ResponseWriter, r *http.Request) {
	st := h.lockouts.Check(r.Context(), auth.NormalizeEmail(mux.Vars(r)["email"]))

	body := map[string]interface{}{
		"identifier": st.Identifier,
		"count":      st.Count,
		"locked":     st.Locked,
	}
	if st.Locked {
		body["lockedUntil"] = st.LockedUntil.UTC().Format(time.RFC3339)
		body["remainingTime"] = int(math.Ceil(st.Remaining.Seconds()))
	}
	writeJSON(w, http.StatusOK, body)
}

// ResetLockout clears the brute-force record of an email.
// @Summary Lift lockout
// @Tags admin
// @Produce json
// @Param email path string true "Login email"
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/admin/lockouts/{email} [delete]
func (h *Handlers) ResetLockout(w http.ResponseWriter, r *http.Request) {
	email := auth.NormalizeEmail(mux.Vars(r)["email"])
	if !h.lockouts.Reset(r.Context(), email) {
		writeError(w, http.StatusServiceUnavailable, "Cache store unavailable")
		return
	}
	logging.WithContext(r.Context()).Info("Lockout reset by operator", logging.String("identifier", email))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "success",
		"identifier": email,
	})
}
