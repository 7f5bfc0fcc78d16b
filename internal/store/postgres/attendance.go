package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"posresto/attendance-service/internal/models"
	"posresto/attendance-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) ClockIn(ctx context.Context, input store.ClockInput) (models.TimeEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.TimeEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Serialize the Idle -> Clocked-In transition per staff member. Two
	// concurrent clock-ins would otherwise both see no active entry.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		staffLockKey(input.TenantID, input.UserID)); err != nil {
		return models.TimeEntry{}, err
	}

	var existingID string
	row := tx.QueryRow(ctx, `
		SELECT entry_id
		FROM time_entries
		WHERE restaurant_id = $1 AND user_id = $2 AND status = $3
	`, input.TenantID, input.UserID, models.EntryStatusActive)
	if scanErr := row.Scan(&existingID); scanErr == nil {
		err = store.ErrAlreadyClockedIn
		return models.TimeEntry{}, err
	} else if !errors.Is(scanErr, pgx.ErrNoRows) {
		err = scanErr
		return models.TimeEntry{}, err
	}

	clockIn := input.OccurredAt
	if clockIn.IsZero() {
		clockIn = time.Now().UTC()
	}
	workDate := dateOf(clockIn)

	shiftID, err := linkShift(ctx, tx, input.TenantID, input.UserID, workDate, clockIn)
	if err != nil {
		return models.TimeEntry{}, err
	}

	entry := models.TimeEntry{
		EntryID:   uuid.NewString(),
		TenantID:  input.TenantID,
		UserID:    input.UserID,
		ShiftID:   shiftID,
		WorkDate:  workDate,
		ClockIn:   clockIn,
		Status:    models.EntryStatusActive,
		Method:    input.Method,
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
	}

	var shiftValue interface{}
	if shiftID != nil {
		shiftValue = *shiftID
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO time_entries (
			entry_id, restaurant_id, user_id, shift_id, work_date,
			clock_in, status, method, latitude, longitude
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.EntryID, entry.TenantID, entry.UserID, shiftValue, entry.WorkDate,
		entry.ClockIn, entry.Status, entry.Method, entry.Latitude, entry.Longitude); err != nil {
		return models.TimeEntry{}, err
	}

	if err = insertAttendanceOutbox(ctx, tx, store.EventClockedIn, entry, input.SourcePayload); err != nil {
		return models.TimeEntry{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.TimeEntry{}, err
	}
	return entry, nil
}

func (s *Store) ClockOut(ctx context.Context, input store.ClockInput) (models.TimeEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.TimeEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		staffLockKey(input.TenantID, input.UserID)); err != nil {
		return models.TimeEntry{}, err
	}

	entry, found, err := scanEntryRow(tx.QueryRow(ctx, `
		SELECT entry_id, restaurant_id, user_id, shift_id, work_date,
		       clock_in, clock_out, status, method, worked_minutes, latitude, longitude
		FROM time_entries
		WHERE restaurant_id = $1 AND user_id = $2 AND status = $3
		FOR UPDATE
	`, input.TenantID, input.UserID, models.EntryStatusActive))
	if err != nil {
		return models.TimeEntry{}, err
	}
	if !found {
		err = store.ErrNoActiveEntry
		return models.TimeEntry{}, err
	}

	clockOut := input.OccurredAt
	if clockOut.IsZero() {
		clockOut = time.Now().UTC()
	}
	// Vendor clocks drift; a clock-out before the recorded clock-in is
	// clamped so worked time never goes negative.
	if clockOut.Before(entry.ClockIn) {
		clockOut = entry.ClockIn
	}
	worked := int(clockOut.Sub(entry.ClockIn).Minutes())

	if _, err = tx.Exec(ctx, `
		UPDATE time_entries
		SET clock_out = $1, status = $2, worked_minutes = $3
		WHERE entry_id = $4
	`, clockOut, models.EntryStatusCompleted, worked, entry.EntryID); err != nil {
		return models.TimeEntry{}, err
	}

	entry.ClockOut = &clockOut
	entry.Status = models.EntryStatusCompleted
	entry.WorkedMinutes = worked

	if err = insertAttendanceOutbox(ctx, tx, store.EventClockedOut, entry, input.SourcePayload); err != nil {
		return models.TimeEntry{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.TimeEntry{}, err
	}
	return entry, nil
}

// linkShift finds the staff member's closest same-day plannable shift and
// moves it to in_progress. Exact start matches sort first.
func linkShift(ctx context.Context, tx pgx.Tx, tenantID, userID string, workDate, clockIn time.Time) (*string, error) {
	var shiftID string
	var status string
	row := tx.QueryRow(ctx, `
		SELECT shift_id, status
		FROM shifts
		WHERE restaurant_id = $1 AND user_id = $2 AND work_date = $3
		  AND status IN ($4, $5)
		ORDER BY ABS(EXTRACT(EPOCH FROM (starts_at - $6::timestamptz))) ASC
		LIMIT 1
		FOR UPDATE
	`, tenantID, userID, workDate, models.ShiftStatusScheduled, models.ShiftStatusConfirmed, clockIn)
	if err := row.Scan(&shiftID, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if !store.ValidShiftTransition(models.ShiftStatusInProgress, status) {
		return nil, nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE shifts SET status = $1 WHERE shift_id = $2
	`, models.ShiftStatusInProgress, shiftID); err != nil {
		return nil, err
	}
	return &shiftID, nil
}

func (s *Store) ActiveEntry(ctx context.Context, tenantID, userID string) (models.TimeEntry, bool, error) {
	return scanEntryRow(s.pool.QueryRow(ctx, `
		SELECT entry_id, restaurant_id, user_id, shift_id, work_date,
		       clock_in, clock_out, status, method, worked_minutes, latitude, longitude
		FROM time_entries
		WHERE restaurant_id = $1 AND user_id = $2 AND status = $3
	`, tenantID, userID, models.EntryStatusActive))
}

func (s *Store) ListEntries(ctx context.Context, tenantID string, filter store.EntryFilter) ([]models.TimeEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, restaurant_id, user_id, shift_id, work_date,
		       clock_in, clock_out, status, method, worked_minutes, latitude, longitude
		FROM time_entries
		WHERE restaurant_id = $1
		  AND ($2 = '' OR user_id = $2::uuid)
		  AND ($3::date IS NULL OR work_date >= $3)
		  AND ($4::date IS NULL OR work_date <= $4)
		ORDER BY clock_in DESC
		LIMIT $5
	`, tenantID, filter.UserID, nullDate(filter.DateFrom), nullDate(filter.DateTo), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *Store) WorkingNow(ctx context.Context, tenantID string) ([]models.TimeEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, restaurant_id, user_id, shift_id, work_date,
		       clock_in, clock_out, status, method, worked_minutes, latitude, longitude
		FROM time_entries
		WHERE restaurant_id = $1 AND status = $2
		ORDER BY clock_in ASC
	`, tenantID, models.EntryStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]models.TimeEntry, error) {
	var entries []models.TimeEntry
	for rows.Next() {
		entry, _, err := scanEntryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntryRow(row rowScanner) (models.TimeEntry, bool, error) {
	var entry models.TimeEntry
	var shiftIDNull sql.NullString
	var clockOutNull sql.NullTime
	var latNull, lonNull sql.NullFloat64
	err := row.Scan(&entry.EntryID, &entry.TenantID, &entry.UserID, &shiftIDNull, &entry.WorkDate,
		&entry.ClockIn, &clockOutNull, &entry.Status, &entry.Method, &entry.WorkedMinutes, &latNull, &lonNull)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TimeEntry{}, false, nil
		}
		return models.TimeEntry{}, false, err
	}
	entry.ShiftID = nullStringPtr(shiftIDNull)
	entry.ClockOut = nullTimePtr(clockOutNull)
	entry.Latitude = nullFloatPtr(latNull)
	entry.Longitude = nullFloatPtr(lonNull)
	return entry, true, nil
}

func nullDate(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return dateOf(t)
}
