package models

import "time"

type TimeEntry struct {
	EntryID       string     `json:"entry_id"`
	TenantID      string     `json:"tenant_id,omitempty"`
	UserID        string     `json:"user_id"`
	ShiftID       *string    `json:"shift_id,omitempty"`
	WorkDate      time.Time  `json:"work_date"`
	ClockIn       time.Time  `json:"clock_in"`
	ClockOut      *time.Time `json:"clock_out,omitempty"`
	Status        string     `json:"status"`
	Method        string     `json:"method"`
	WorkedMinutes int        `json:"worked_minutes"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
}

const (
	EntryStatusActive    = "active"
	EntryStatusCompleted = "completed"
)

const (
	MethodManual = "manual"
	MethodPin    = "pin"
	MethodQr     = "qr"
	MethodDevice = "device"
)

type Shift struct {
	ShiftID  string    `json:"shift_id"`
	TenantID string    `json:"tenant_id,omitempty"`
	UserID   string    `json:"user_id"`
	WorkDate time.Time `json:"work_date"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Status   string    `json:"status"`
}

const (
	ShiftStatusScheduled  = "scheduled"
	ShiftStatusConfirmed  = "confirmed"
	ShiftStatusInProgress = "in_progress"
	ShiftStatusCancelled  = "cancelled"
)

type Device struct {
	DeviceID     string     `json:"device_id"`
	TenantID     string     `json:"tenant_id,omitempty"`
	SerialNumber string     `json:"serial_number"`
	Vendor       string     `json:"vendor"`
	Name         string     `json:"name,omitempty"`
	Enabled      bool       `json:"enabled"`
	Status       string     `json:"status"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
}

const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
)

type QrToken struct {
	TokenID     string     `json:"token_id"`
	TenantID    string     `json:"tenant_id,omitempty"`
	Token       string     `json:"token"`
	Type        string     `json:"type"`
	RequiresGeo bool       `json:"requires_geolocation"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

const (
	TokenTypeStatic  = "static"
	TokenTypeDynamic = "dynamic"
)

type StaffMember struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id,omitempty"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Active   bool   `json:"active"`
}

// RestaurantSettings is what the event processor needs from the tenant
// configuration: which clock-in channels are allowed, how QR codes behave,
// and the local timezone for interpreting device timestamps.
type RestaurantSettings struct {
	RestaurantID         string `json:"restaurant_id"`
	Name                 string `json:"name"`
	Timezone             string `json:"timezone"`
	AttendanceMode       string `json:"attendance_mode"`
	QrTokenType          string `json:"qr_token_type"`
	QrTokenTTLSeconds    int    `json:"qr_token_ttl_seconds"`
	RequireGeolocation   bool   `json:"require_geolocation"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
}

const (
	AttendanceModeDisabled   = "disabled"
	AttendanceModeQrOnly     = "qr_only"
	AttendanceModeDeviceOnly = "device_only"
	AttendanceModeDeviceOrQr = "device_or_qr"
)

// MethodAllowed reports whether the given clock method is permitted under
// the tenant's attendance mode. Manual and PIN entries are driven by an
// authenticated human and are always allowed unless attendance is disabled.
func MethodAllowed(mode, method string) bool {
	switch mode {
	case AttendanceModeDisabled:
		return false
	case AttendanceModeQrOnly:
		return method != MethodDevice
	case AttendanceModeDeviceOnly:
		return method != MethodQr
	default:
		return true
	}
}
