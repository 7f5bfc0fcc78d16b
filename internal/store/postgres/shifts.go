package postgres

import (
	"context"
	"errors"
	"time"

	"posresto/attendance-service/internal/models"
	"posresto/attendance-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateShift(ctx context.Context, input store.ShiftInput) (models.Shift, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Shift{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Serialize overlap checks per staff member and day, otherwise two
	// concurrent creates could both pass the check and both insert.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		staffLockKey(input.TenantID, input.UserID)); err != nil {
		return models.Shift{}, err
	}

	workDate := dateOf(input.WorkDate)
	if err = checkOverlap(ctx, tx, input.TenantID, input.UserID, workDate, input.StartsAt, input.EndsAt, ""); err != nil {
		return models.Shift{}, err
	}

	shift := models.Shift{
		ShiftID:  uuid.NewString(),
		TenantID: input.TenantID,
		UserID:   input.UserID,
		WorkDate: workDate,
		StartsAt: input.StartsAt,
		EndsAt:   input.EndsAt,
		Status:   models.ShiftStatusScheduled,
	}
	if input.Status == models.ShiftStatusConfirmed {
		shift.Status = models.ShiftStatusConfirmed
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO shifts (shift_id, restaurant_id, user_id, work_date, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, shift.ShiftID, shift.TenantID, shift.UserID, shift.WorkDate, shift.StartsAt, shift.EndsAt, shift.Status); err != nil {
		return models.Shift{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Shift{}, err
	}
	return shift, nil
}

func (s *Store) UpdateShift(ctx context.Context, input store.ShiftInput) (models.Shift, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Shift{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Same lock order as CreateShift: advisory lock first, row lock
	// second. The staff key needs the shift's user_id, so peek at the
	// row without locking it before taking either lock.
	var userID string
	row := tx.QueryRow(ctx, `
		SELECT user_id FROM shifts WHERE shift_id = $1 AND restaurant_id = $2
	`, input.ShiftID, input.TenantID)
	if err = row.Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrShiftNotFound
		}
		return models.Shift{}, err
	}

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		staffLockKey(input.TenantID, userID)); err != nil {
		return models.Shift{}, err
	}

	shift, err := lockShift(ctx, tx, input.TenantID, input.ShiftID)
	if err != nil {
		return models.Shift{}, err
	}

	if !input.StartsAt.IsZero() {
		shift.StartsAt = input.StartsAt
	}
	if !input.EndsAt.IsZero() {
		shift.EndsAt = input.EndsAt
	}
	if !input.WorkDate.IsZero() {
		shift.WorkDate = dateOf(input.WorkDate)
	}

	if input.Status != "" && input.Status != shift.Status {
		if shift.Status == models.ShiftStatusInProgress {
			err = store.ErrShiftInProgress
			return models.Shift{}, err
		}
		if !store.ValidShiftTransition(input.Status, shift.Status) {
			err = store.ErrInvalidShiftStatus
			return models.Shift{}, err
		}
		shift.Status = input.Status
	}

	if shift.Status != models.ShiftStatusCancelled {
		if err = checkOverlap(ctx, tx, shift.TenantID, shift.UserID, shift.WorkDate,
			shift.StartsAt, shift.EndsAt, shift.ShiftID); err != nil {
			return models.Shift{}, err
		}
	}

	if _, err = tx.Exec(ctx, `
		UPDATE shifts
		SET work_date = $1, starts_at = $2, ends_at = $3, status = $4
		WHERE shift_id = $5 AND restaurant_id = $6
	`, shift.WorkDate, shift.StartsAt, shift.EndsAt, shift.Status, shift.ShiftID, shift.TenantID); err != nil {
		return models.Shift{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Shift{}, err
	}
	return shift, nil
}

func (s *Store) DeleteShift(ctx context.Context, tenantID, shiftID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	shift, err := lockShift(ctx, tx, tenantID, shiftID)
	if err != nil {
		return err
	}
	if shift.Status == models.ShiftStatusInProgress {
		err = store.ErrShiftInProgress
		return err
	}

	if _, err = tx.Exec(ctx, `
		DELETE FROM shifts WHERE shift_id = $1 AND restaurant_id = $2
	`, shiftID, tenantID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) ListShifts(ctx context.Context, tenantID string, filter store.ShiftFilter) ([]models.Shift, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT shift_id, restaurant_id, user_id, work_date, starts_at, ends_at, status
		FROM shifts
		WHERE restaurant_id = $1
		  AND ($2 = '' OR user_id = $2::uuid)
		  AND ($3::date IS NULL OR work_date >= $3)
		  AND ($4::date IS NULL OR work_date <= $4)
		ORDER BY work_date ASC, starts_at ASC
	`, tenantID, filter.UserID, nullDate(filter.DateFrom), nullDate(filter.DateTo))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shifts []models.Shift
	for rows.Next() {
		var shift models.Shift
		if err := rows.Scan(&shift.ShiftID, &shift.TenantID, &shift.UserID, &shift.WorkDate,
			&shift.StartsAt, &shift.EndsAt, &shift.Status); err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	return shifts, rows.Err()
}

func lockShift(ctx context.Context, tx pgx.Tx, tenantID, shiftID string) (models.Shift, error) {
	var shift models.Shift
	row := tx.QueryRow(ctx, `
		SELECT shift_id, restaurant_id, user_id, work_date, starts_at, ends_at, status
		FROM shifts
		WHERE shift_id = $1 AND restaurant_id = $2
		FOR UPDATE
	`, shiftID, tenantID)
	if err := row.Scan(&shift.ShiftID, &shift.TenantID, &shift.UserID, &shift.WorkDate,
		&shift.StartsAt, &shift.EndsAt, &shift.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Shift{}, store.ErrShiftNotFound
		}
		return models.Shift{}, err
	}
	return shift, nil
}

// checkOverlap rejects a [startsAt,endsAt) range that intersects any
// non-cancelled shift for the same staff member on the same date.
func checkOverlap(ctx context.Context, tx pgx.Tx, tenantID, userID string, workDate, startsAt, endsAt time.Time, excludeShiftID string) error {
	rows, err := tx.Query(ctx, `
		SELECT shift_id, starts_at, ends_at
		FROM shifts
		WHERE restaurant_id = $1 AND user_id = $2 AND work_date = $3
		  AND status <> $4
	`, tenantID, userID, workDate, models.ShiftStatusCancelled)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var shiftID string
		var existingStart, existingEnd time.Time
		if err := rows.Scan(&shiftID, &existingStart, &existingEnd); err != nil {
			return err
		}
		if shiftID == excludeShiftID {
			continue
		}
		if store.Overlaps(startsAt, endsAt, existingStart, existingEnd) {
			return store.ErrOverlappingShift
		}
	}
	return rows.Err()
}
