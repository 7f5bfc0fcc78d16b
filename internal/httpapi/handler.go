package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"posresto/attendance-service/internal/models"
	"posresto/attendance-service/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	store       store.Store
	scanBaseURL string
}

type Options struct {
	// ScanBaseURL is the public URL QR codes point at; the token is
	// appended as a query parameter.
	ScanBaseURL string
}

func NewHandler(st store.Store, options Options) *Handler {
	scanBase := options.ScanBaseURL
	if scanBase == "" {
		scanBase = "https://app.posresto.local/attendance/scan"
	}
	return &Handler{
		store:       st,
		scanBaseURL: scanBase,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/webhook/", h.handleWebhook)
	mux.HandleFunc("/heartbeat", h.handleHeartbeat)
	mux.HandleFunc("/qr/", h.handleQr)
	mux.HandleFunc("/attendance/qr/clock-in", h.handleQrClockIn)
	mux.HandleFunc("/attendance/qr/clock-out", h.handleQrClockOut)
	mux.HandleFunc("/attendance/pin/clock-in", h.handlePinClockIn)
	mux.HandleFunc("/attendance/pin/clock-out", h.handlePinClockOut)
	mux.HandleFunc("/clock-in", h.handleManualClockIn)
	mux.HandleFunc("/clock-out", h.handleManualClockOut)
	mux.HandleFunc("/attendance/status", h.handleStatus)
	mux.HandleFunc("/attendance/history", h.handleHistory)
	mux.HandleFunc("/attendance/working-now", h.handleWorkingNow)
	mux.HandleFunc("/api/shifts", h.handleShifts)
	mux.HandleFunc("/api/shifts/", h.handleShiftByID)
	return AuthMiddleware(h.store, mux)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// processClock is the event-processor boundary shared by every origin:
// it enforces the tenant attendance mode, then drives the Idle/Clocked-In
// state machine in the store.
func (h *Handler) processClock(w http.ResponseWriter, r *http.Request, kind string, input store.ClockInput) {
	settings, err := h.store.GetSettings(r.Context(), input.TenantID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !models.MethodAllowed(settings.AttendanceMode, input.Method) {
		writeError(w, http.StatusForbidden, "attendance_mode",
			"attendance mode "+settings.AttendanceMode+" does not allow "+input.Method+" events")
		return
	}

	if input.OccurredAt.IsZero() {
		input.OccurredAt = tenantNow(settings)
	}

	var entry models.TimeEntry
	if kind == "clock_in" {
		entry, err = h.store.ClockIn(r.Context(), input)
	} else {
		entry, err = h.store.ClockOut(r.Context(), input)
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	clockEvents.Add(1)
	writeJSON(w, http.StatusOK, clockResponse{Success: true, Entry: entry})
}

type clockResponse struct {
	Success bool             `json:"success"`
	Entry   models.TimeEntry `json:"entry"`
}

// tenantNow returns the current time in the tenant's timezone, falling
// back to UTC for an unknown or empty zone name.
func tenantNow(settings models.RestaurantSettings) time.Time {
	return time.Now().In(tenantLocation(settings))
}

func tenantLocation(settings models.RestaurantSettings) *time.Location {
	if settings.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
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

	entry, active, err := h.store.ActiveEntry(r.Context(), session.TenantID, userID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	resp := map[string]interface{}{
		"success":    true,
		"user_id":    userID,
		"clocked_in": active,
	}
	if active {
		resp["entry"] = entry
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	filter := store.EntryFilter{
		UserID: strings.TrimSpace(r.URL.Query().Get("user_id")),
	}
	if filter.UserID == "" && !session.Role.AtLeast(models.RoleManager) {
		filter.UserID = session.UserID
	}
	if filter.UserID != "" {
		if !isValidUUID(filter.UserID) {
			writeError(w, http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
			return
		}
		if !requireSelfOrScheduler(w, session, filter.UserID) {
			return
		}
	}

	var err error
	if filter.DateFrom, filter.DateTo, err = dateRange(r); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	entries, err := h.store.ListEntries(r.Context(), session.TenantID, filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "entries": entries})
}

func (h *Handler) handleWorkingNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	entries, err := h.store.WorkingNow(r.Context(), session.TenantID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "entries": entries})
}

// dateRange reads date/date_from/date_to/week query filters. week=ISO
// date of any day inside the wanted week.
func dateRange(r *http.Request) (time.Time, time.Time, error) {
	query := r.URL.Query()
	if value := strings.TrimSpace(query.Get("date")); value != "" {
		day, err := time.Parse("2006-01-02", value)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("date must be YYYY-MM-DD")
		}
		return day, day, nil
	}
	if value := strings.TrimSpace(query.Get("week")); value != "" {
		day, err := time.Parse("2006-01-02", value)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("week must be YYYY-MM-DD")
		}
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		monday := day.AddDate(0, 0, 1-weekday)
		return monday, monday.AddDate(0, 0, 6), nil
	}

	var from, to time.Time
	var err error
	if value := strings.TrimSpace(query.Get("date_from")); value != "" {
		if from, err = time.Parse("2006-01-02", value); err != nil {
			return time.Time{}, time.Time{}, errors.New("date_from must be YYYY-MM-DD")
		}
	}
	if value := strings.TrimSpace(query.Get("date_to")); value != "" {
		if to, err = time.Parse("2006-01-02", value); err != nil {
			return time.Time{}, time.Time{}, errors.New("date_to must be YYYY-MM-DD")
		}
	}
	return from, to, nil
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrRestaurantNotFound):
		return http.StatusNotFound, "restaurant_not_found", "restaurant not found"
	case errors.Is(err, store.ErrDeviceNotFound):
		return http.StatusNotFound, "device_not_found", "device not found"
	case errors.Is(err, store.ErrDeviceDisabled):
		return http.StatusUnauthorized, "device_disabled", "device is disabled"
	case errors.Is(err, store.ErrInvalidApiKey):
		return http.StatusUnauthorized, "invalid_api_key", "invalid api key"
	case errors.Is(err, store.ErrTokenNotFound):
		return http.StatusUnauthorized, "invalid_qr_token", "qr token is not valid"
	case errors.Is(err, store.ErrTokenExpired):
		return http.StatusUnauthorized, "qr_token_expired", "qr token has expired"
	case errors.Is(err, store.ErrAlreadyClockedIn):
		return http.StatusConflict, "already_clocked_in", "staff member is already clocked in"
	case errors.Is(err, store.ErrNoActiveEntry):
		return http.StatusConflict, "no_active_entry", "staff member has no active time entry"
	case errors.Is(err, store.ErrOverlappingShift):
		return http.StatusUnprocessableEntity, "overlapping_shift", "shift overlaps an existing shift for this staff member"
	case errors.Is(err, store.ErrShiftInProgress):
		return http.StatusConflict, "shift_in_progress", "shift is in progress"
	case errors.Is(err, store.ErrInvalidShiftStatus):
		return http.StatusConflict, "invalid_shift_status", "shift status does not allow this change"
	case errors.Is(err, store.ErrShiftNotFound):
		return http.StatusNotFound, "shift_not_found", "shift not found"
	case errors.Is(err, store.ErrStaffNotFound):
		return http.StatusNotFound, "staff_not_found", "staff member not found"
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", "time entry not found"
	case errors.Is(err, store.ErrInvalidPin):
		return http.StatusUnauthorized, "invalid_pin", "pin code is not valid"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

// errorResponse keeps error a flat string so terminal firmwares that
// only understand {success, error} can display it as-is.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Success: false,
		Error:   code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
