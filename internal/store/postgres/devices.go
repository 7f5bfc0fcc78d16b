package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"posresto/attendance-service/internal/models"
	"posresto/attendance-service/internal/store"

	"github.com/jackc/pgx/v5"
)

func (s *Store) DeviceBySerial(ctx context.Context, serial string) (models.Device, error) {
	device, _, err := s.deviceBySerial(ctx, serial)
	return device, err
}

// AuthenticateDevice resolves a device by serial number and checks its
// API key. The heartbeat is not touched here: callers update it only
// after the key validates.
func (s *Store) AuthenticateDevice(ctx context.Context, serial, apiKey string) (models.Device, error) {
	device, keyHash, err := s.deviceBySerial(ctx, serial)
	if err != nil {
		return models.Device{}, err
	}
	if !device.Enabled {
		return models.Device{}, store.ErrDeviceDisabled
	}
	if keyHash == "" || !apiKeyMatches(keyHash, apiKey) {
		return models.Device{}, store.ErrInvalidApiKey
	}
	return device, nil
}

func (s *Store) deviceBySerial(ctx context.Context, serial string) (models.Device, string, error) {
	var device models.Device
	var keyHash sql.NullString
	var lastSeenNull sql.NullTime
	var nameNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT device_id, restaurant_id, serial_number, vendor, name,
		       api_key_hash, enabled, status, last_seen_at
		FROM devices
		WHERE serial_number = $1
	`, serial)
	if err := row.Scan(&device.DeviceID, &device.TenantID, &device.SerialNumber, &device.Vendor,
		&nameNull, &keyHash, &device.Enabled, &device.Status, &lastSeenNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Device{}, "", store.ErrDeviceNotFound
		}
		return models.Device{}, "", err
	}
	if nameNull.Valid {
		device.Name = nameNull.String
	}
	device.LastSeenAt = nullTimePtr(lastSeenNull)
	return device, keyHash.String, nil
}

func (s *Store) TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE devices
		SET last_seen_at = $1, status = $2
		WHERE device_id = $3
	`, seenAt.UTC(), models.DeviceStatusOnline, deviceID)
	return err
}

func (s *Store) MarkDevicesOffline(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE devices
		SET status = $1
		WHERE status = $2 AND (last_seen_at IS NULL OR last_seen_at < $3)
	`, models.DeviceStatusOffline, models.DeviceStatusOnline, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
