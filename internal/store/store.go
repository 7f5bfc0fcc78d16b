package store

import (
	"context"
	"encoding/json"
	"time"

	"posresto/attendance-service/internal/models"
)

type ClockInput struct {
	TenantID   string
	UserID     string
	Method     string
	OccurredAt time.Time
	Latitude   *float64
	Longitude  *float64
	// SourcePayload is the raw vendor payload for device-origin events,
	// kept on the audit trail only.
	SourcePayload json.RawMessage
}

type ShiftInput struct {
	TenantID string
	ShiftID  string
	UserID   string
	WorkDate time.Time
	StartsAt time.Time
	EndsAt   time.Time
	Status   string
}

type EntryFilter struct {
	UserID   string
	DateFrom time.Time
	DateTo   time.Time
	Limit    int
}

type ShiftFilter struct {
	UserID   string
	DateFrom time.Time
	DateTo   time.Time
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	TenantID  string          `json:"tenant_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type Notification struct {
	NotificationID string
	TenantID       string
	Channel        string
	Recipient      string
	Status         string
	Attempts       int
	LastError      string
	CreatedAt      time.Time
}

type Session struct {
	SessionID string
	UserID    string
	TenantID  string
	Role      models.Role
	ExpiresAt time.Time
}

// Store is the persistence boundary of the attendance service. Every
// method takes an explicit tenant id; there are no unscoped lookups.
type Store interface {
	// Event processor.
	ClockIn(ctx context.Context, input ClockInput) (models.TimeEntry, error)
	ClockOut(ctx context.Context, input ClockInput) (models.TimeEntry, error)
	ActiveEntry(ctx context.Context, tenantID, userID string) (models.TimeEntry, bool, error)
	ListEntries(ctx context.Context, tenantID string, filter EntryFilter) ([]models.TimeEntry, error)
	WorkingNow(ctx context.Context, tenantID string) ([]models.TimeEntry, error)

	// Device registry.
	DeviceBySerial(ctx context.Context, serial string) (models.Device, error)
	AuthenticateDevice(ctx context.Context, serial, apiKey string) (models.Device, error)
	TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error
	MarkDevicesOffline(ctx context.Context, cutoff time.Time) (int, error)

	// QR token lifecycle.
	GetOrCreateQrToken(ctx context.Context, tenantID string) (models.QrToken, error)
	RefreshQrToken(ctx context.Context, tenantID string) (models.QrToken, error)
	ResolveQrToken(ctx context.Context, token string) (models.QrToken, error)

	// Shift scheduler.
	CreateShift(ctx context.Context, input ShiftInput) (models.Shift, error)
	UpdateShift(ctx context.Context, input ShiftInput) (models.Shift, error)
	DeleteShift(ctx context.Context, tenantID, shiftID string) error
	ListShifts(ctx context.Context, tenantID string, filter ShiftFilter) ([]models.Shift, error)

	// Collaborators: tenant settings, staff directory, sessions.
	GetSettings(ctx context.Context, tenantID string) (models.RestaurantSettings, error)
	GetStaff(ctx context.Context, tenantID, userID string) (models.StaffMember, error)
	StaffByPin(ctx context.Context, tenantID, pin string) (models.StaffMember, error)
	StaffByExternalRef(ctx context.Context, tenantID, externalRef string) (models.StaffMember, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)

	// Attendance audit log.
	ListEntryEvents(ctx context.Context, tenantID, entryID string) ([]AttendanceEvent, error)
}
