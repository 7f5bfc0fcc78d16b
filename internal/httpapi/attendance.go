package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"posresto/attendance-service/internal/models"
	"posresto/attendance-service/internal/store"
)

type qrClockRequest struct {
	QrToken   string   `json:"qr_token"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *Handler) handleQrClockIn(w http.ResponseWriter, r *http.Request) {
	h.handleQrClock(w, r, "clock_in")
}

func (h *Handler) handleQrClockOut(w http.ResponseWriter, r *http.Request) {
	h.handleQrClock(w, r, "clock_out")
}

// handleQrClock records a presence event from a scanned QR code. The
// session identifies who is clocking; the token proves they are standing
// at the restaurant.
func (h *Handler) handleQrClock(w http.ResponseWriter, r *http.Request, kind string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req qrClockRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.QrToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "qr_token is required")
		return
	}

	token, err := h.store.ResolveQrToken(r.Context(), req.QrToken)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if token.TenantID != session.TenantID {
		writeError(w, http.StatusUnauthorized, "invalid_qr_token", "qr token is not valid")
		return
	}
	if !h.checkGeolocation(w, token.RequiresGeo, req.Latitude, req.Longitude) {
		return
	}

	h.processClock(w, r, kind, store.ClockInput{
		TenantID:  session.TenantID,
		UserID:    session.UserID,
		Method:    models.MethodQr,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
}

type pinClockRequest struct {
	RestaurantID string   `json:"restaurant_id"`
	PinCode      string   `json:"pin_code"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

func (h *Handler) handlePinClockIn(w http.ResponseWriter, r *http.Request) {
	h.handlePinClock(w, r, "clock_in")
}

func (h *Handler) handlePinClockOut(w http.ResponseWriter, r *http.Request) {
	h.handlePinClock(w, r, "clock_out")
}

// handlePinClock records a presence event from a shared terminal. There
// is no session: the PIN code is the credential.
func (h *Handler) handlePinClock(w http.ResponseWriter, r *http.Request, kind string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req pinClockRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if !isValidUUID(req.RestaurantID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "restaurant_id must be a UUID")
		return
	}
	if strings.TrimSpace(req.PinCode) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "pin_code is required")
		return
	}

	staff, err := h.store.StaffByPin(r.Context(), req.RestaurantID, req.PinCode)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.processClock(w, r, kind, store.ClockInput{
		TenantID:  req.RestaurantID,
		UserID:    staff.UserID,
		Method:    models.MethodPin,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
}

type manualClockRequest struct {
	UserID    string   `json:"user_id"`
	Method    string   `json:"method"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *Handler) handleManualClockIn(w http.ResponseWriter, r *http.Request) {
	h.handleManualClock(w, r, "clock_in")
}

func (h *Handler) handleManualClockOut(w http.ResponseWriter, r *http.Request) {
	h.handleManualClock(w, r, "clock_out")
}

// handleManualClock lets staff clock themselves, and managers clock
// anyone on their roster.
func (h *Handler) handleManualClock(w http.ResponseWriter, r *http.Request, kind string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req manualClockRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = session.UserID
	}
	if !isValidUUID(userID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return
	}
	if !requireSelfOrScheduler(w, session, userID) {
		return
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = models.MethodManual
	}
	if method != models.MethodManual && method != models.MethodPin {
		writeError(w, http.StatusBadRequest, "invalid_request", "method must be manual or pin")
		return
	}
	if _, err := h.store.GetStaff(r.Context(), session.TenantID, userID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.processClock(w, r, kind, store.ClockInput{
		TenantID:  session.TenantID,
		UserID:    userID,
		Method:    method,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
}

// checkGeolocation validates optional coordinates: required when the
// token demands them, and always range-checked when present.
func (h *Handler) checkGeolocation(w http.ResponseWriter, required bool, lat, lon *float64) bool {
	if required && (lat == nil || lon == nil) {
		writeError(w, http.StatusUnprocessableEntity, "geolocation_required", "this restaurant requires geolocation on clock events")
		return false
	}
	if lat != nil && (*lat < -90 || *lat > 90) {
		writeError(w, http.StatusBadRequest, "invalid_location", "latitude out of range")
		return false
	}
	if lon != nil && (*lon < -180 || *lon > 180) {
		writeError(w, http.StatusBadRequest, "invalid_location", "longitude out of range")
		return false
	}
	return true
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
