package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"posresto/attendance-service/internal/models"
	"posresto/attendance-service/internal/store"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) GetSettings(ctx context.Context, tenantID string) (models.RestaurantSettings, error) {
	return querySettings(ctx, s.pool, tenantID)
}

func getSettingsTx(ctx context.Context, tx pgx.Tx, tenantID string) (models.RestaurantSettings, error) {
	return querySettings(ctx, tx, tenantID)
}

func querySettings(ctx context.Context, q querier, tenantID string) (models.RestaurantSettings, error) {
	var settings models.RestaurantSettings
	row := q.QueryRow(ctx, `
		SELECT restaurant_id, name, timezone, attendance_mode,
		       qr_token_type, qr_token_ttl_seconds, require_geolocation, notifications_enabled
		FROM restaurants
		WHERE restaurant_id = $1
	`, tenantID)
	if err := row.Scan(&settings.RestaurantID, &settings.Name, &settings.Timezone,
		&settings.AttendanceMode, &settings.QrTokenType, &settings.QrTokenTTLSeconds,
		&settings.RequireGeolocation, &settings.NotificationsEnabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RestaurantSettings{}, store.ErrRestaurantNotFound
		}
		return models.RestaurantSettings{}, err
	}
	return settings, nil
}

func (s *Store) GetStaff(ctx context.Context, tenantID, userID string) (models.StaffMember, error) {
	var staff models.StaffMember
	var role string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, restaurant_id, name, role, active
		FROM staff
		WHERE restaurant_id = $1 AND user_id = $2
	`, tenantID, userID)
	if err := row.Scan(&staff.UserID, &staff.TenantID, &staff.Name, &role, &staff.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.StaffMember{}, store.ErrStaffNotFound
		}
		return models.StaffMember{}, err
	}
	staff.Role = models.ParseRole(role)
	return staff, nil
}

// StaffByPin resolves a staff member from a PIN code. PINs are stored as
// bcrypt hashes, so candidates are compared one by one; restaurant staff
// rosters are small enough for this to stay cheap.
func (s *Store) StaffByPin(ctx context.Context, tenantID, pin string) (models.StaffMember, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, restaurant_id, name, role, active, pin_hash
		FROM staff
		WHERE restaurant_id = $1 AND active AND pin_hash IS NOT NULL
	`, tenantID)
	if err != nil {
		return models.StaffMember{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var staff models.StaffMember
		var role string
		var pinHash string
		if err := rows.Scan(&staff.UserID, &staff.TenantID, &staff.Name, &role, &staff.Active, &pinHash); err != nil {
			return models.StaffMember{}, err
		}
		if bcrypt.CompareHashAndPassword([]byte(pinHash), []byte(pin)) == nil {
			staff.Role = models.ParseRole(role)
			return staff, nil
		}
	}
	if err := rows.Err(); err != nil {
		return models.StaffMember{}, err
	}
	return models.StaffMember{}, store.ErrInvalidPin
}

// StaffByExternalRef maps a device-local user identifier (the id the
// biometric terminal knows the person by) to a staff member.
func (s *Store) StaffByExternalRef(ctx context.Context, tenantID, externalRef string) (models.StaffMember, error) {
	var staff models.StaffMember
	var role string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, restaurant_id, name, role, active
		FROM staff
		WHERE restaurant_id = $1 AND external_ref = $2
	`, tenantID, externalRef)
	if err := row.Scan(&staff.UserID, &staff.TenantID, &staff.Name, &role, &staff.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.StaffMember{}, store.ErrStaffNotFound
		}
		return models.StaffMember{}, err
	}
	staff.Role = models.ParseRole(role)
	return staff, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	var role string
	var expires sql.NullTime
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, restaurant_id, role, expires_at
		FROM sessions
		WHERE session_id = $1
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.TenantID, &role, &expires); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	session.Role = models.ParseRole(role)
	if expires.Valid {
		session.ExpiresAt = expires.Time
	}
	if !session.ExpiresAt.IsZero() && time.Now().UTC().After(session.ExpiresAt) {
		return store.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}
