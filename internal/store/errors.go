package store

import "errors"

var (
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceDisabled     = errors.New("device disabled")
	ErrInvalidApiKey      = errors.New("invalid api key")
	ErrTokenNotFound      = errors.New("qr token not found")
	ErrTokenExpired       = errors.New("qr token expired")
	ErrAlreadyClockedIn   = errors.New("staff member already clocked in")
	ErrNoActiveEntry      = errors.New("no active time entry")
	ErrEntryNotFound      = errors.New("time entry not found")
	ErrShiftNotFound      = errors.New("shift not found")
	ErrOverlappingShift   = errors.New("overlapping shift")
	ErrShiftInProgress    = errors.New("shift in progress")
	ErrInvalidShiftStatus = errors.New("invalid shift status transition")
	ErrStaffNotFound      = errors.New("staff member not found")
	ErrInvalidPin         = errors.New("invalid pin code")
	ErrSessionNotFound    = errors.New("session not found")
	ErrAccessDenied       = errors.New("access denied")
)
