package handlers

import (
	"net/http"
	"time"
)

// PartnerPing is the minimal API-key protected endpoint.
// @Summary Partner ping
// @Tags partner
// @Produce json
// @Param X-API-Key header string true "Partner API key"
// @Success 200 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Router /api/partner/ping [get]
func (h *Handlers) PartnerPing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
