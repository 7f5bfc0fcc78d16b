package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"posresto/attendance-service/internal/store"

	"github.com/jackc/pgx/v5"
)

const notifierOffsetName = "notifier"

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, tenant_id, type, payload_json, created_at
		FROM outbox_events
		WHERE created_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, after.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.TenantID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *Store) GetLastOffset(ctx context.Context) (time.Time, error) {
	var last sql.NullTime
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time FROM worker_offsets WHERE name = $1
	`, notifierOffsetName)
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

func (s *Store) UpdateOffset(ctx context.Context, value time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO worker_offsets (name, last_event_time, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET last_event_time = $2, updated_at = $3
	`, notifierOffsetName, value.UTC(), time.Now().UTC())
	return err
}

func (s *Store) IsNotificationsEnabled(ctx context.Context, tenantID string) (bool, error) {
	settings, err := querySettings(ctx, s.pool, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrRestaurantNotFound) {
			return false, nil
		}
		return false, err
	}
	return settings.NotificationsEnabled, nil
}

func (s *Store) InsertNotification(ctx context.Context, notification store.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (notification_id, tenant_id, channel, recipient, status, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, notification.NotificationID, notification.TenantID, notification.Channel, notification.Recipient,
		notification.Status, notification.Attempts, nullIfEmpty(notification.LastError), notification.CreatedAt)
	return err
}

func (s *Store) MarkNotificationSent(ctx context.Context, notificationID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET status = 'sent' WHERE notification_id = $1
	`, notificationID)
	return err
}

func (s *Store) MarkNotificationFailed(ctx context.Context, notificationID, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'failed', attempts = attempts + 1, last_error = $2
		WHERE notification_id = $1
	`, notificationID, lastError)
	return err
}

func (s *Store) InsertDLQ(ctx context.Context, notificationID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications_dlq (notification_id, reason, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (notification_id) DO NOTHING
	`, notificationID, reason, time.Now().UTC())
	return err
}
