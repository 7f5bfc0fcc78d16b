package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Vendor identifies a supported device wire format. The set is closed:
// adding a vendor means adding a case here, not registering a plugin.
type Vendor string

const (
	VendorAnviz     Vendor = "anviz"
	VendorZKTeco    Vendor = "zkteco"
	VendorHikvision Vendor = "hikvision"
	VendorGeneric   Vendor = "generic"
)

const (
	KindClockIn  = "clock_in"
	KindClockOut = "clock_out"
)

var (
	ErrUnknownVendor    = errors.New("unknown device vendor")
	ErrMissingSerial    = errors.New("payload has no serial number")
	ErrMissingUserID    = errors.New("payload has no user identifier")
	ErrInvalidTimestamp = errors.New("unparseable event timestamp")
)

// RawPresenceEvent is the canonical presence event produced from any
// vendor payload. It is ephemeral: the raw payload is carried along for
// audit but the event itself is never persisted.
type RawPresenceEvent struct {
	Vendor         Vendor
	SerialNumber   string
	ExternalUserID string
	Kind           string
	// Ambiguous marks vendors whose protocol does not distinguish entry
	// from exit. The kind is still set to the documented default.
	Ambiguous  bool
	OccurredAt time.Time
	Raw        map[string]interface{}
}

// ParseVendor validates a vendor tag from a webhook URL.
func ParseVendor(value string) (Vendor, error) {
	switch Vendor(strings.ToLower(strings.TrimSpace(value))) {
	case VendorAnviz:
		return VendorAnviz, nil
	case VendorZKTeco:
		return VendorZKTeco, nil
	case VendorHikvision:
		return VendorHikvision, nil
	case VendorGeneric:
		return VendorGeneric, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVendor, value)
	}
}

var serialAliases = map[Vendor][]string{
	VendorAnviz:     {"device_sn", "sn", "serial_number", "device_id"},
	VendorZKTeco:    {"sn", "SN", "serial_number", "device_sn"},
	VendorHikvision: {"deviceSerial", "serialNumber", "device_sn", "sn"},
	VendorGeneric:   {"serial_number", "sn", "serial", "device_id"},
}

var userAliases = map[Vendor][]string{
	VendorAnviz:     {"user_id", "userid", "employee_id", "card_no"},
	VendorZKTeco:    {"user_id", "pin", "enrollid", "userid"},
	VendorHikvision: {"employeeNoString", "employeeNo", "cardNo", "user_id"},
	VendorGeneric:   {"user_id", "employee_id", "pin", "card_no"},
}

var timestampAliases = []string{"timestamp", "event_time", "checktime", "time", "dateTime"}

// SerialNumber extracts the device serial from a vendor payload using the
// vendor's field aliases, first match wins.
func SerialNumber(vendor Vendor, payload map[string]interface{}) (string, error) {
	if sn, ok := firstString(payload, serialAliases[vendor]); ok {
		return sn, nil
	}
	return "", ErrMissingSerial
}

// Normalize maps a vendor payload into a RawPresenceEvent. The tenant's
// location interprets naive device timestamps; now supplies the fallback
// when the payload carries no timestamp or an unparseable one. Timestamp
// failures never reject an event (availability over precision), but an
// unknown vendor or a payload with no serial or user id does.
func Normalize(vendor Vendor, payload map[string]interface{}, loc *time.Location, now time.Time) (RawPresenceEvent, error) {
	serial, err := SerialNumber(vendor, payload)
	if err != nil {
		return RawPresenceEvent{}, err
	}

	userID, ok := firstString(payload, userAliases[vendor])
	if !ok {
		return RawPresenceEvent{}, ErrMissingUserID
	}

	event := RawPresenceEvent{
		Vendor:         vendor,
		SerialNumber:   serial,
		ExternalUserID: userID,
		OccurredAt:     now.In(loc),
		Raw:            payload,
	}

	switch vendor {
	case VendorAnviz, VendorZKTeco:
		// Numeric punch state: 0 is an entry, anything else an exit.
		// A payload with no punch field at all is treated as an entry.
		if punch, ok := firstNumber(payload, []string{"punch", "status", "state"}); ok && punch != 0 {
			event.Kind = KindClockOut
		} else {
			event.Kind = KindClockIn
		}
	case VendorHikvision:
		// Hikvision access events carry no direction. Every event is
		// treated as an entry; Ambiguous tells the caller this is a
		// protocol limitation, not a decision this code can make.
		event.Kind = KindClockIn
		event.Ambiguous = true
	case VendorGeneric:
		code, _ := firstString(payload, []string{"event", "event_type", "type", "action", "code"})
		event.Kind = genericKind(code)
	default:
		return RawPresenceEvent{}, fmt.Errorf("%w: %q", ErrUnknownVendor, vendor)
	}

	if raw, ok := firstString(payload, timestampAliases); ok {
		if t, err := ParseEventTime(raw, loc); err == nil {
			event.OccurredAt = t
		}
	}

	return event, nil
}

// genericKind maps loosely specified event codes onto a clock direction.
// Unrecognized codes fall back to clock_in.
func genericKind(code string) string {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "in", "clock_in", "checkin", "0", "1":
		return KindClockIn
	case "out", "clock_out", "checkout", "2":
		return KindClockOut
	default:
		return KindClockIn
	}
}

var eventTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ParseEventTime parses a device-supplied timestamp. Zoned formats keep
// their offset; naive formats are interpreted in loc.
func ParseEventTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range eventTimeLayouts[1:] {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	// Some vendors send unix seconds.
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).In(loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

func firstString(payload map[string]interface{}, keys []string) (string, bool) {
	for _, key := range keys {
		value, ok := payload[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed, true
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case int:
			return strconv.Itoa(v), true
		}
	}
	return "", false
}

func firstNumber(payload map[string]interface{}, keys []string) (float64, bool) {
	for _, key := range keys {
		value, ok := payload[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
