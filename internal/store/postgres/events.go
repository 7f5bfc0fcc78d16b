package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"posresto/attendance-service/internal/models"
	"posresto/attendance-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// insertAttendanceOutbox appends one row to the per-entry audit ledger
// and one row to the outbox inside the caller's transaction, so the
// business mutation, the audit trail, and the notification trigger
// commit or roll back together.
func insertAttendanceOutbox(ctx context.Context, tx pgx.Tx, eventType string, entry models.TimeEntry, source json.RawMessage) error {
	payload := map[string]interface{}{
		"entry_id":       entry.EntryID,
		"restaurant_id":  entry.TenantID,
		"user_id":        entry.UserID,
		"shift_id":       entry.ShiftID,
		"status":         entry.Status,
		"method":         entry.Method,
		"clock_in":       entry.ClockIn,
		"clock_out":      entry.ClockOut,
		"worked_minutes": entry.WorkedMinutes,
	}
	if len(source) > 0 {
		payload["source"] = source
	}

	payloadJSON, err := jsonBytes(payload)
	if err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, tenant_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), entry.TenantID, eventType, payloadJSON, time.Now().UTC()); err != nil {
		return err
	}

	return insertAttendanceEvent(ctx, tx, entry.EntryID, eventType, payloadJSON)
}

func insertAttendanceEvent(ctx context.Context, tx pgx.Tx, entryID, eventType string, payload []byte) error {
	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT entry_seq, hash
		FROM attendance_events
		WHERE entry_id = $1
		ORDER BY entry_seq DESC
		LIMIT 1
		FOR UPDATE
	`, entryID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	nextSeq := lastSeq + 1
	prev := ""
	if prevHash.Valid {
		prev = prevHash.String
	}
	createdAt := time.Now().UTC()
	hash := store.ComputeAttendanceEventHash(prev, entryID, eventType, payload, createdAt, nextSeq)

	_, err := tx.Exec(ctx, `
		INSERT INTO attendance_events (entry_id, entry_seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entryID, nextSeq, eventType, payload, createdAt, prev, hash)
	return err
}

func (s *Store) ListEntryEvents(ctx context.Context, tenantID, entryID string) ([]store.AttendanceEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.entry_id, e.entry_seq, e.type, e.payload, e.created_at, e.prev_hash, e.hash
		FROM attendance_events e
		JOIN time_entries t ON t.entry_id = e.entry_id
		WHERE t.restaurant_id = $1 AND e.entry_id = $2
		ORDER BY e.entry_seq ASC
	`, tenantID, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.AttendanceEvent
	for rows.Next() {
		var event store.AttendanceEvent
		if err := rows.Scan(&event.EntryID, &event.EntrySeq, &event.Type, &event.Payload,
			&event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
