package httpapi

import (
	"net/http"
	"strings"
	"time"

	"posresto/attendance-service/internal/models"
	"posresto/attendance-service/internal/store"
)

type shiftRequest struct {
	UserID   string `json:"user_id"`
	WorkDate string `json:"work_date"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
	Status   string `json:"status"`
}

func (h *Handler) handleShifts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listShifts(w, r)
	case http.MethodPost:
		h.createShift(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleShiftByID(w http.ResponseWriter, r *http.Request) {
	shiftID := strings.TrimPrefix(r.URL.Path, "/api/shifts/")
	if !isValidUUID(shiftID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "shift id must be a UUID")
		return
	}
	switch r.Method {
	case http.MethodPut:
		h.updateShift(w, r, shiftID)
	case http.MethodDelete:
		h.deleteShift(w, r, shiftID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listShifts(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	filter := store.ShiftFilter{
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

	shifts, err := h.store.ListShifts(r.Context(), session.TenantID, filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "shifts": shifts})
}

func (h *Handler) createShift(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !requireScheduler(w, session) {
		return
	}

	var req shiftRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	input, ok := h.shiftInput(w, session.TenantID, req)
	if !ok {
		return
	}
	if input.Status == "" {
		input.Status = models.ShiftStatusScheduled
	}

	shift, err := h.store.CreateShift(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "shift": shift})
}

func (h *Handler) updateShift(w http.ResponseWriter, r *http.Request, shiftID string) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !requireScheduler(w, session) {
		return
	}

	var req shiftRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	input, ok := h.shiftInput(w, session.TenantID, req)
	if !ok {
		return
	}
	input.ShiftID = shiftID

	shift, err := h.store.UpdateShift(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "shift": shift})
}

func (h *Handler) deleteShift(w http.ResponseWriter, r *http.Request, shiftID string) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !requireScheduler(w, session) {
		return
	}

	if err := h.store.DeleteShift(r.Context(), session.TenantID, shiftID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// shiftInput validates the request body into a store input. EndsAt before
// StartsAt is rejected here; overlap is the store's job.
func (h *Handler) shiftInput(w http.ResponseWriter, tenantID string, req shiftRequest) (store.ShiftInput, bool) {
	if !isValidUUID(req.UserID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return store.ShiftInput{}, false
	}
	workDate, err := time.Parse("2006-01-02", req.WorkDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "work_date must be YYYY-MM-DD")
		return store.ShiftInput{}, false
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "starts_at must be RFC3339")
		return store.ShiftInput{}, false
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "ends_at must be RFC3339")
		return store.ShiftInput{}, false
	}
	if !endsAt.After(startsAt) {
		writeError(w, http.StatusBadRequest, "invalid_request", "ends_at must be after starts_at")
		return store.ShiftInput{}, false
	}
	switch req.Status {
	case "", models.ShiftStatusScheduled, models.ShiftStatusConfirmed, models.ShiftStatusInProgress, models.ShiftStatusCancelled:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown shift status")
		return store.ShiftInput{}, false
	}

	return store.ShiftInput{
		TenantID: tenantID,
		UserID:   req.UserID,
		WorkDate: workDate,
		StartsAt: startsAt,
		EndsAt:   endsAt,
		Status:   req.Status,
	}, true
}
