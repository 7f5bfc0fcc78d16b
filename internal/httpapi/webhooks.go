package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"posresto/attendance-service/internal/models"
	"posresto/attendance-service/internal/protocol"
	"posresto/attendance-service/internal/store"
)

// handleWebhook ingests a vendor push on POST /webhook/{vendor}. The
// device is authenticated before the payload is interpreted, and its
// heartbeat is refreshed as soon as authentication succeeds: a rejected
// event still proves the device is alive.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	vendor, err := protocol.ParseVendor(strings.TrimPrefix(r.URL.Path, "/webhook/"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_vendor", "unknown device vendor")
		return
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object")
		return
	}

	serial, err := protocol.SerialNumber(vendor, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_serial", "payload has no serial number")
		return
	}

	if _, err := h.store.DeviceBySerial(r.Context(), serial); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	apiKey := deviceAPIKey(r)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "missing_api_key", "device api key is required")
		return
	}
	device, err := h.store.AuthenticateDevice(r.Context(), serial, apiKey)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if err := h.store.TouchDevice(r.Context(), device.DeviceID, time.Now()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	settings, err := h.store.GetSettings(r.Context(), device.TenantID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	event, err := protocol.Normalize(vendor, payload, tenantLocation(settings), time.Now())
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrMissingUserID):
			writeError(w, http.StatusBadRequest, "missing_user_id", "payload has no user identifier")
		default:
			writeError(w, http.StatusBadRequest, "invalid_request", "payload could not be interpreted")
		}
		return
	}

	staff, err := h.store.StaffByExternalRef(r.Context(), device.TenantID, event.ExternalUserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	raw, _ := json.Marshal(payload)
	h.processClock(w, r, event.Kind, store.ClockInput{
		TenantID:      device.TenantID,
		UserID:        staff.UserID,
		Method:        models.MethodDevice,
		OccurredAt:    event.OccurredAt,
		SourcePayload: raw,
	})
}

type heartbeatRequest struct {
	SerialNumber string `json:"serial_number"`
	Sn           string `json:"sn"`
	Type         string `json:"type"`
}

// handleHeartbeat answers POST /heartbeat keep-alives. Heartbeats are
// unauthenticated like the vendor firmwares send them; only known
// serials are acknowledged.
func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object")
		return
	}
	serial := strings.TrimSpace(req.SerialNumber)
	if serial == "" {
		serial = strings.TrimSpace(req.Sn)
	}
	if serial == "" {
		writeError(w, http.StatusBadRequest, "missing_serial", "serial_number is required")
		return
	}

	device, err := h.store.DeviceBySerial(r.Context(), serial)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	now := time.Now()
	if err := h.store.TouchDevice(r.Context(), device.DeviceID, now); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"device_id":   device.DeviceID,
		"server_time": now.UTC().Format(time.RFC3339),
	})
}
