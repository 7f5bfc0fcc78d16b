package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"posresto/attendance-service/internal/models"
)

// handleQr serves the QR display surface:
//
//	GET  /qr/{restaurant}          current token, creating one on first use
//	POST /qr/{restaurant}/refresh  forced rotation
//
// These routes are unauthenticated: they run on wall-mounted display
// screens, and the token itself only proves presence, not identity.
func (h *Handler) handleQr(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/qr/")
	tenantID, action, _ := strings.Cut(rest, "/")
	if tenantID == "" || !isValidUUID(tenantID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "restaurant id must be a UUID")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		token, err := h.store.GetOrCreateQrToken(r.Context(), tenantID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		h.writeQrToken(w, r, tenantID, token)
	case action == "refresh" && r.Method == http.MethodPost:
		token, err := h.store.RefreshQrToken(r.Context(), tenantID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		h.writeQrToken(w, r, tenantID, token)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) writeQrToken(w http.ResponseWriter, r *http.Request, tenantID string, token models.QrToken) {
	settings, err := h.store.GetSettings(r.Context(), tenantID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	resp := map[string]interface{}{
		"success":  true,
		"token":    token.Token,
		"type":     token.Type,
		"scan_url": h.scanURL(token.Token),
		"restaurant": map[string]string{
			"id":   settings.RestaurantID,
			"name": settings.Name,
		},
	}
	if token.Type == models.TokenTypeDynamic && token.ExpiresAt != nil {
		resp["expires_at"] = token.ExpiresAt.UTC().Format(time.RFC3339)
		refreshIn := int(time.Until(*token.ExpiresAt).Seconds())
		if refreshIn < 0 {
			refreshIn = 0
		}
		resp["refresh_in_seconds"] = refreshIn
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) scanURL(token string) string {
	return h.scanBaseURL + "?token=" + url.QueryEscape(token)
}
