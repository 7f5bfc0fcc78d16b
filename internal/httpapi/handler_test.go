package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"posresto/attendance-service/internal/models"
	"posresto/attendance-service/internal/store"
)

type fakeStore struct {
	clockInFn      func(ctx context.Context, input store.ClockInput) (models.TimeEntry, error)
	clockOutFn     func(ctx context.Context, input store.ClockInput) (models.TimeEntry, error)
	activeFn       func(ctx context.Context, tenantID, userID string) (models.TimeEntry, bool, error)
	listEntriesFn  func(ctx context.Context, tenantID string, filter store.EntryFilter) ([]models.TimeEntry, error)
	workingNowFn   func(ctx context.Context, tenantID string) ([]models.TimeEntry, error)
	deviceFn       func(ctx context.Context, serial string) (models.Device, error)
	authDeviceFn   func(ctx context.Context, serial, apiKey string) (models.Device, error)
	touchFn        func(ctx context.Context, deviceID string, seenAt time.Time) error
	offlineFn      func(ctx context.Context, cutoff time.Time) (int, error)
	getTokenFn     func(ctx context.Context, tenantID string) (models.QrToken, error)
	refreshTokenFn func(ctx context.Context, tenantID string) (models.QrToken, error)
	resolveTokenFn func(ctx context.Context, token string) (models.QrToken, error)
	createShiftFn  func(ctx context.Context, input store.ShiftInput) (models.Shift, error)
	updateShiftFn  func(ctx context.Context, input store.ShiftInput) (models.Shift, error)
	deleteShiftFn  func(ctx context.Context, tenantID, shiftID string) error
	listShiftsFn   func(ctx context.Context, tenantID string, filter store.ShiftFilter) ([]models.Shift, error)
	settingsFn     func(ctx context.Context, tenantID string) (models.RestaurantSettings, error)
	getStaffFn     func(ctx context.Context, tenantID, userID string) (models.StaffMember, error)
	staffByPinFn   func(ctx context.Context, tenantID, pin string) (models.StaffMember, error)
	staffByRefFn   func(ctx context.Context, tenantID, externalRef string) (models.StaffMember, error)
	sessionFn      func(ctx context.Context, sessionID string) (store.Session, error)
	entryEventsFn  func(ctx context.Context, tenantID, entryID string) ([]store.AttendanceEvent, error)
}

func (f fakeStore) ClockIn(ctx context.Context, input store.ClockInput) (models.TimeEntry, error) {
	if f.clockInFn == nil {
		return models.TimeEntry{}, nil
	}
	return f.clockInFn(ctx, input)
}

func (f fakeStore) ClockOut(ctx context.Context, input store.ClockInput) (models.TimeEntry, error) {
	if f.clockOutFn == nil {
		return models.TimeEntry{}, nil
	}
	return f.clockOutFn(ctx, input)
}

func (f fakeStore) ActiveEntry(ctx context.Context, tenantID, userID string) (models.TimeEntry, bool, error) {
	if f.activeFn == nil {
		return models.TimeEntry{}, false, nil
	}
	return f.activeFn(ctx, tenantID, userID)
}

func (f fakeStore) ListEntries(ctx context.Context, tenantID string, filter store.EntryFilter) ([]models.TimeEntry, error) {
	if f.listEntriesFn == nil {
		return nil, nil
	}
	return f.listEntriesFn(ctx, tenantID, filter)
}

func (f fakeStore) WorkingNow(ctx context.Context, tenantID string) ([]models.TimeEntry, error) {
	if f.workingNowFn == nil {
		return nil, nil
	}
	return f.workingNowFn(ctx, tenantID)
}

func (f fakeStore) DeviceBySerial(ctx context.Context, serial string) (models.Device, error) {
	if f.deviceFn == nil {
		return models.Device{}, nil
	}
	return f.deviceFn(ctx, serial)
}

func (f fakeStore) AuthenticateDevice(ctx context.Context, serial, apiKey string) (models.Device, error) {
	if f.authDeviceFn == nil {
		return models.Device{}, nil
	}
	return f.authDeviceFn(ctx, serial, apiKey)
}

func (f fakeStore) TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error {
	if f.touchFn == nil {
		return nil
	}
	return f.touchFn(ctx, deviceID, seenAt)
}

func (f fakeStore) MarkDevicesOffline(ctx context.Context, cutoff time.Time) (int, error) {
	if f.offlineFn == nil {
		return 0, nil
	}
	return f.offlineFn(ctx, cutoff)
}

func (f fakeStore) GetOrCreateQrToken(ctx context.Context, tenantID string) (models.QrToken, error) {
	if f.getTokenFn == nil {
		return models.QrToken{}, nil
	}
	return f.getTokenFn(ctx, tenantID)
}

func (f fakeStore) RefreshQrToken(ctx context.Context, tenantID string) (models.QrToken, error) {
	if f.refreshTokenFn == nil {
		return models.QrToken{}, nil
	}
	return f.refreshTokenFn(ctx, tenantID)
}

func (f fakeStore) ResolveQrToken(ctx context.Context, token string) (models.QrToken, error) {
	if f.resolveTokenFn == nil {
		return models.QrToken{}, nil
	}
	return f.resolveTokenFn(ctx, token)
}

func (f fakeStore) CreateShift(ctx context.Context, input store.ShiftInput) (models.Shift, error) {
	if f.createShiftFn == nil {
		return models.Shift{}, nil
	}
	return f.createShiftFn(ctx, input)
}

func (f fakeStore) UpdateShift(ctx context.Context, input store.ShiftInput) (models.Shift, error) {
	if f.updateShiftFn == nil {
		return models.Shift{}, nil
	}
	return f.updateShiftFn(ctx, input)
}

func (f fakeStore) DeleteShift(ctx context.Context, tenantID, shiftID string) error {
	if f.deleteShiftFn == nil {
		return nil
	}
	return f.deleteShiftFn(ctx, tenantID, shiftID)
}

func (f fakeStore) ListShifts(ctx context.Context, tenantID string, filter store.ShiftFilter) ([]models.Shift, error) {
	if f.listShiftsFn == nil {
		return nil, nil
	}
	return f.listShiftsFn(ctx, tenantID, filter)
}

func (f fakeStore) GetSettings(ctx context.Context, tenantID string) (models.RestaurantSettings, error) {
	if f.settingsFn == nil {
		return models.RestaurantSettings{
			RestaurantID:   tenantID,
			Name:           "Test Restaurant",
			Timezone:       "UTC",
			AttendanceMode: models.AttendanceModeDeviceOrQr,
		}, nil
	}
	return f.settingsFn(ctx, tenantID)
}

func (f fakeStore) GetStaff(ctx context.Context, tenantID, userID string) (models.StaffMember, error) {
	if f.getStaffFn == nil {
		return models.StaffMember{UserID: userID, TenantID: tenantID, Active: true}, nil
	}
	return f.getStaffFn(ctx, tenantID, userID)
}

func (f fakeStore) StaffByPin(ctx context.Context, tenantID, pin string) (models.StaffMember, error) {
	if f.staffByPinFn == nil {
		return models.StaffMember{}, nil
	}
	return f.staffByPinFn(ctx, tenantID, pin)
}

func (f fakeStore) StaffByExternalRef(ctx context.Context, tenantID, externalRef string) (models.StaffMember, error) {
	if f.staffByRefFn == nil {
		return models.StaffMember{}, nil
	}
	return f.staffByRefFn(ctx, tenantID, externalRef)
}

func (f fakeStore) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	if f.sessionFn == nil {
		return store.Session{}, store.ErrSessionNotFound
	}
	return f.sessionFn(ctx, sessionID)
}

func (f fakeStore) ListEntryEvents(ctx context.Context, tenantID, entryID string) ([]store.AttendanceEvent, error) {
	if f.entryEventsFn == nil {
		return nil, nil
	}
	return f.entryEventsFn(ctx, tenantID, entryID)
}

const (
	testTenant  = "22222222-2222-2222-2222-222222222222"
	testUser    = "33333333-3333-3333-3333-333333333333"
	testManager = "44444444-4444-4444-4444-444444444444"
)

func staffSession(role models.Role, userID string) func(ctx context.Context, sessionID string) (store.Session, error) {
	return func(ctx context.Context, sessionID string) (store.Session, error) {
		if sessionID != "good-session" {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{
			SessionID: sessionID,
			UserID:    userID,
			TenantID:  testTenant,
			Role:      role,
			ExpiresAt: time.Now().Add(time.Hour),
		}, nil
	}
}

func postJSON(t *testing.T, h http.Handler, path string, payload interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if body.Success {
		t.Fatalf("expected success=false in error response")
	}
	if body.Message == "" {
		t.Fatalf("expected a human-readable message alongside %q", body.Error)
	}
	return body.Error
}

func TestWebhookClockInSuccess(t *testing.T) {
	touched := false
	st := fakeStore{
		authDeviceFn: func(ctx context.Context, serial, apiKey string) (models.Device, error) {
			if serial != "ZK-100" || apiKey != "secret-key" {
				return models.Device{}, store.ErrInvalidApiKey
			}
			return models.Device{DeviceID: "dev-1", TenantID: testTenant, SerialNumber: serial, Enabled: true}, nil
		},
		touchFn: func(ctx context.Context, deviceID string, seenAt time.Time) error {
			touched = true
			return nil
		},
		staffByRefFn: func(ctx context.Context, tenantID, externalRef string) (models.StaffMember, error) {
			if externalRef != "7" {
				return models.StaffMember{}, store.ErrStaffNotFound
			}
			return models.StaffMember{UserID: testUser, TenantID: tenantID, Active: true}, nil
		},
		clockInFn: func(ctx context.Context, input store.ClockInput) (models.TimeEntry, error) {
			if input.Method != models.MethodDevice {
				t.Fatalf("expected device method, got %q", input.Method)
			}
			return models.TimeEntry{EntryID: "entry-1", UserID: input.UserID, Status: models.EntryStatusActive, Method: input.Method}, nil
		},
	}

	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/webhook/zkteco",
		map[string]interface{}{"sn": "ZK-100", "user_id": "7", "punch": 0},
		map[string]string{"X-API-Key": "secret-key"})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !touched {
		t.Fatalf("expected heartbeat refresh after device auth")
	}
}

func TestWebhookMissingAPIKey(t *testing.T) {
	touched := false
	st := fakeStore{
		touchFn: func(ctx context.Context, deviceID string, seenAt time.Time) error {
			touched = true
			return nil
		},
	}

	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/webhook/zkteco",
		map[string]interface{}{"sn": "ZK-100", "user_id": "7"}, nil)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "missing_api_key" {
		t.Fatalf("expected missing_api_key, got %q", code)
	}
	if touched {
		t.Fatalf("rejected request must not refresh the heartbeat")
	}
}

func TestWebhookUnknownVendor(t *testing.T) {
	h := NewHandler(fakeStore{}, Options{})
	resp := postJSON(t, h.Routes(), "/webhook/suprema",
		map[string]interface{}{"sn": "X", "user_id": "1"},
		map[string]string{"X-API-Key": "k"})

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "unknown_vendor" {
		t.Fatalf("expected unknown_vendor, got %q", code)
	}
}

func TestWebhookDisabledDevice(t *testing.T) {
	st := fakeStore{
		authDeviceFn: func(ctx context.Context, serial, apiKey string) (models.Device, error) {
			return models.Device{}, store.ErrDeviceDisabled
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/webhook/anviz",
		map[string]interface{}{"device_sn": "AV-1", "user_id": "5"},
		map[string]string{"X-API-Key": "k"})

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "device_disabled" {
		t.Fatalf("expected device_disabled, got %q", code)
	}
}

func TestWebhookAttendanceModeRejectsDevice(t *testing.T) {
	st := fakeStore{
		authDeviceFn: func(ctx context.Context, serial, apiKey string) (models.Device, error) {
			return models.Device{DeviceID: "dev-1", TenantID: testTenant, Enabled: true}, nil
		},
		settingsFn: func(ctx context.Context, tenantID string) (models.RestaurantSettings, error) {
			return models.RestaurantSettings{RestaurantID: tenantID, Timezone: "UTC", AttendanceMode: models.AttendanceModeQrOnly}, nil
		},
		staffByRefFn: func(ctx context.Context, tenantID, externalRef string) (models.StaffMember, error) {
			return models.StaffMember{UserID: testUser, Active: true}, nil
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/webhook/generic",
		map[string]interface{}{"serial_number": "G-1", "user_id": "9", "event": "in"},
		map[string]string{"X-API-Key": "k"})

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "attendance_mode" {
		t.Fatalf("expected attendance_mode, got %q", code)
	}
}

func TestHeartbeatKnownDevice(t *testing.T) {
	var seen time.Time
	st := fakeStore{
		deviceFn: func(ctx context.Context, serial string) (models.Device, error) {
			if serial != "ZK-100" {
				return models.Device{}, store.ErrDeviceNotFound
			}
			return models.Device{DeviceID: "dev-1", SerialNumber: serial}, nil
		},
		touchFn: func(ctx context.Context, deviceID string, seenAt time.Time) error {
			seen = seenAt
			return nil
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/heartbeat", map[string]string{"sn": "ZK-100", "type": "zkteco"}, nil)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if seen.IsZero() {
		t.Fatalf("expected heartbeat to refresh last_seen_at")
	}

	var body struct {
		Success    bool   `json:"success"`
		DeviceID   string `json:"device_id"`
		ServerTime string `json:"server_time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success || body.DeviceID != "dev-1" || body.ServerTime == "" {
		t.Fatalf("unexpected heartbeat response: %+v", body)
	}
}

func TestHeartbeatUnknownSerial(t *testing.T) {
	st := fakeStore{
		deviceFn: func(ctx context.Context, serial string) (models.Device, error) {
			return models.Device{}, store.ErrDeviceNotFound
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/heartbeat", map[string]string{"serial_number": "NOPE"}, nil)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestQrClockInAlreadyClockedIn(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleStaff, testUser),
		resolveTokenFn: func(ctx context.Context, token string) (models.QrToken, error) {
			return models.QrToken{TokenID: "tok-1", TenantID: testTenant, Token: token, Type: models.TokenTypeStatic}, nil
		},
		clockInFn: func(ctx context.Context, input store.ClockInput) (models.TimeEntry, error) {
			return models.TimeEntry{}, store.ErrAlreadyClockedIn
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/attendance/qr/clock-in",
		map[string]string{"qr_token": "abc123"},
		map[string]string{"Authorization": "Bearer good-session"})

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "already_clocked_in" {
		t.Fatalf("expected already_clocked_in, got %q", code)
	}
}

func TestQrClockInExpiredToken(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleStaff, testUser),
		resolveTokenFn: func(ctx context.Context, token string) (models.QrToken, error) {
			return models.QrToken{}, store.ErrTokenExpired
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/attendance/qr/clock-in",
		map[string]string{"qr_token": "stale"},
		map[string]string{"Authorization": "Bearer good-session"})

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "qr_token_expired" {
		t.Fatalf("expected qr_token_expired, got %q", code)
	}
}

func TestQrClockInForeignTenantToken(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleStaff, testUser),
		resolveTokenFn: func(ctx context.Context, token string) (models.QrToken, error) {
			return models.QrToken{TokenID: "tok-1", TenantID: "99999999-9999-9999-9999-999999999999", Token: token}, nil
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/attendance/qr/clock-in",
		map[string]string{"qr_token": "other-restaurant"},
		map[string]string{"Authorization": "Bearer good-session"})

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "invalid_qr_token" {
		t.Fatalf("expected invalid_qr_token, got %q", code)
	}
}

func TestQrClockInGeolocationRequired(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleStaff, testUser),
		resolveTokenFn: func(ctx context.Context, token string) (models.QrToken, error) {
			return models.QrToken{TokenID: "tok-1", TenantID: testTenant, Token: token, RequiresGeo: true}, nil
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/attendance/qr/clock-in",
		map[string]string{"qr_token": "abc123"},
		map[string]string{"Authorization": "Bearer good-session"})

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "geolocation_required" {
		t.Fatalf("expected geolocation_required, got %q", code)
	}
}

func TestQrClockOutNoActiveEntry(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleStaff, testUser),
		resolveTokenFn: func(ctx context.Context, token string) (models.QrToken, error) {
			return models.QrToken{TokenID: "tok-1", TenantID: testTenant, Token: token}, nil
		},
		clockOutFn: func(ctx context.Context, input store.ClockInput) (models.TimeEntry, error) {
			return models.TimeEntry{}, store.ErrNoActiveEntry
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/attendance/qr/clock-out",
		map[string]string{"qr_token": "abc123"},
		map[string]string{"Authorization": "Bearer good-session"})

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "no_active_entry" {
		t.Fatalf("expected no_active_entry, got %q", code)
	}
}

func TestPinClockInSuccess(t *testing.T) {
	st := fakeStore{
		staffByPinFn: func(ctx context.Context, tenantID, pin string) (models.StaffMember, error) {
			if pin != "4821" {
				return models.StaffMember{}, store.ErrInvalidPin
			}
			return models.StaffMember{UserID: testUser, TenantID: tenantID, Active: true}, nil
		},
		clockInFn: func(ctx context.Context, input store.ClockInput) (models.TimeEntry, error) {
			if input.UserID != testUser || input.Method != models.MethodPin {
				t.Fatalf("unexpected clock input: %+v", input)
			}
			return models.TimeEntry{EntryID: "entry-1", UserID: input.UserID, Status: models.EntryStatusActive, Method: input.Method}, nil
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/attendance/pin/clock-in",
		map[string]string{"restaurant_id": testTenant, "pin_code": "4821"}, nil)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestPinClockInWrongPin(t *testing.T) {
	st := fakeStore{
		staffByPinFn: func(ctx context.Context, tenantID, pin string) (models.StaffMember, error) {
			return models.StaffMember{}, store.ErrInvalidPin
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/attendance/pin/clock-in",
		map[string]string{"restaurant_id": testTenant, "pin_code": "0000"}, nil)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "invalid_pin" {
		t.Fatalf("expected invalid_pin, got %q", code)
	}
}

func TestManualClockForAnotherStaffDenied(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleStaff, testUser),
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/clock-in",
		map[string]string{"user_id": testManager},
		map[string]string{"Authorization": "Bearer good-session"})

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "access_denied" {
		t.Fatalf("expected access_denied, got %q", code)
	}
}

func TestManualClockByManagerForStaff(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleManager, testManager),
		clockInFn: func(ctx context.Context, input store.ClockInput) (models.TimeEntry, error) {
			if input.UserID != testUser {
				t.Fatalf("expected clock for %s, got %s", testUser, input.UserID)
			}
			return models.TimeEntry{EntryID: "entry-1", UserID: input.UserID, Status: models.EntryStatusActive, Method: input.Method}, nil
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/clock-in",
		map[string]string{"user_id": testUser},
		map[string]string{"Authorization": "Bearer good-session"})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestStatusWithoutSession(t *testing.T) {
	h := NewHandler(fakeStore{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/attendance/status", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestStatusClockedIn(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleStaff, testUser),
		activeFn: func(ctx context.Context, tenantID, userID string) (models.TimeEntry, bool, error) {
			return models.TimeEntry{EntryID: "entry-1", UserID: userID, Status: models.EntryStatusActive}, true, nil
		},
	}
	h := NewHandler(st, Options{})
	req := httptest.NewRequest(http.MethodGet, "/attendance/status", nil)
	req.Header.Set("Authorization", "Bearer good-session")
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		ClockedIn bool `json:"clocked_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.ClockedIn {
		t.Fatalf("expected clocked_in=true")
	}
}

func TestQrDisplayDynamicToken(t *testing.T) {
	expires := time.Now().Add(45 * time.Second)
	st := fakeStore{
		getTokenFn: func(ctx context.Context, tenantID string) (models.QrToken, error) {
			return models.QrToken{
				TokenID:   "tok-1",
				TenantID:  tenantID,
				Token:     "dyn-token-value",
				Type:      models.TokenTypeDynamic,
				ExpiresAt: &expires,
			}, nil
		},
	}
	h := NewHandler(st, Options{ScanBaseURL: "https://clock.example.com/scan"})
	req := httptest.NewRequest(http.MethodGet, "/qr/"+testTenant, nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Token            string `json:"token"`
		ScanURL          string `json:"scan_url"`
		ExpiresAt        string `json:"expires_at"`
		RefreshInSeconds int    `json:"refresh_in_seconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Token != "dyn-token-value" {
		t.Fatalf("unexpected token: %q", body.Token)
	}
	if body.ScanURL != "https://clock.example.com/scan?token=dyn-token-value" {
		t.Fatalf("unexpected scan url: %q", body.ScanURL)
	}
	if body.ExpiresAt == "" || body.RefreshInSeconds <= 0 {
		t.Fatalf("expected expiry metadata on dynamic token, got %+v", body)
	}
}

func TestQrRefreshRotates(t *testing.T) {
	refreshed := false
	st := fakeStore{
		refreshTokenFn: func(ctx context.Context, tenantID string) (models.QrToken, error) {
			refreshed = true
			return models.QrToken{TokenID: "tok-2", TenantID: tenantID, Token: "fresh", Type: models.TokenTypeStatic}, nil
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/qr/"+testTenant+"/refresh", map[string]string{}, nil)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !refreshed {
		t.Fatalf("expected refresh to rotate the token")
	}
}

func TestCreateShiftOverlapRejected(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleManager, testManager),
		createShiftFn: func(ctx context.Context, input store.ShiftInput) (models.Shift, error) {
			return models.Shift{}, store.ErrOverlappingShift
		},
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/api/shifts", map[string]string{
		"user_id":   testUser,
		"work_date": "2026-09-01",
		"starts_at": "2026-09-01T12:00:00Z",
		"ends_at":   "2026-09-01T16:00:00Z",
	}, map[string]string{"Authorization": "Bearer good-session"})

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "overlapping_shift" {
		t.Fatalf("expected overlapping_shift, got %q", code)
	}
}

func TestCreateShiftRequiresManager(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleStaff, testUser),
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/api/shifts", map[string]string{
		"user_id":   testUser,
		"work_date": "2026-09-01",
		"starts_at": "2026-09-01T09:00:00Z",
		"ends_at":   "2026-09-01T13:00:00Z",
	}, map[string]string{"Authorization": "Bearer good-session"})

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestCreateShiftEndsBeforeStarts(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleManager, testManager),
	}
	h := NewHandler(st, Options{})
	resp := postJSON(t, h.Routes(), "/api/shifts", map[string]string{
		"user_id":   testUser,
		"work_date": "2026-09-01",
		"starts_at": "2026-09-01T16:00:00Z",
		"ends_at":   "2026-09-01T12:00:00Z",
	}, map[string]string{"Authorization": "Bearer good-session"})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestDeleteShiftInProgress(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleManager, testManager),
		deleteShiftFn: func(ctx context.Context, tenantID, shiftID string) error {
			return store.ErrShiftInProgress
		},
	}
	h := NewHandler(st, Options{})
	req := httptest.NewRequest(http.MethodDelete, "/api/shifts/aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", nil)
	req.Header.Set("Authorization", "Bearer good-session")
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "shift_in_progress" {
		t.Fatalf("expected shift_in_progress, got %q", code)
	}
}

func TestHistoryStaffScopedToSelf(t *testing.T) {
	st := fakeStore{
		sessionFn: staffSession(models.RoleStaff, testUser),
		listEntriesFn: func(ctx context.Context, tenantID string, filter store.EntryFilter) ([]models.TimeEntry, error) {
			if filter.UserID != testUser {
				t.Fatalf("staff history must be scoped to the caller, got user %q", filter.UserID)
			}
			return []models.TimeEntry{{EntryID: "entry-1", UserID: testUser}}, nil
		},
	}
	h := NewHandler(st, Options{})
	req := httptest.NewRequest(http.MethodGet, "/attendance/history?date=2026-09-01", nil)
	req.Header.Set("Authorization", "Bearer good-session")
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 60, IPBurst: 2})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/attendance/working-now", nil)
		req.RemoteAddr = "10.0.0.9:5555"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		last = resp.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}
