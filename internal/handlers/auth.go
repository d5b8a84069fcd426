package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"marketplace-gateway/internal/auth"
	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/common/validation"
	"marketplace-gateway/internal/middleware"
)

// Login checks credentials and issues a bearer token. The outcome is reported
// to the auth rate-limit filter and the brute-force guard in front of it.
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param body body validation.LoginRequest true "Credentials"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Router /api/auth/login [post]
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req validation.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if fields := h.validator.Fields(req); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"status":  "error",
			"message": "Validation failed",
			"errors":  fields,
		})
		return
	}

	user, err := h.credentials.Check(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			middleware.ReportOutcome(r.Context(), false)
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		logging.WithContext(r.Context()).Error("Credential check failed", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	token, err := h.auth.GenerateJWT(user.ID, user.Email, user.Role)
	if err != nil {
		logging.WithContext(r.Context()).Error("Failed to issue token", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	middleware.ReportOutcome(r.Context(), true)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"token":  token,
		"user": auth.Identity{
			UserID:        user.ID,
			Email:         user.Email,
			Role:          user.Role,
			Authenticated: true,
		},
	})
}

// Me echoes the identity the gateway derived for the caller.
// @Summary Current identity
// @Tags auth
// @Produce json
// @Success 200 {object} auth.Identity
// @Router /api/me [get]
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.IdentityFromContext(r.Context()))
}
