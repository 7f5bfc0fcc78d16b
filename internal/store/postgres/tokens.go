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

// GetOrCreateQrToken returns the tenant's single active token record,
// minting one with the tenant-configured type if absent. An expired
// dynamic token is rotated in place, so callers always receive a token
// that currently validates.
func (s *Store) GetOrCreateQrToken(ctx context.Context, tenantID string) (models.QrToken, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QrToken{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	settings, err := getSettingsTx(ctx, tx, tenantID)
	if err != nil {
		return models.QrToken{}, err
	}

	token, found, err := lockTokenRow(ctx, tx, tenantID)
	if err != nil {
		return models.QrToken{}, err
	}

	now := time.Now().UTC()
	switch {
	case !found:
		token, err = s.insertToken(ctx, tx, tenantID, settings, now)
	case token.Type == models.TokenTypeDynamic && token.ExpiresAt != nil && !now.Before(*token.ExpiresAt):
		token, err = s.rotateToken(ctx, tx, token, settings, now)
	}
	if err != nil {
		return models.QrToken{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QrToken{}, err
	}
	return token, nil
}

// RefreshQrToken forces an immediate rotation regardless of expiry.
func (s *Store) RefreshQrToken(ctx context.Context, tenantID string) (models.QrToken, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QrToken{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	settings, err := getSettingsTx(ctx, tx, tenantID)
	if err != nil {
		return models.QrToken{}, err
	}

	token, found, err := lockTokenRow(ctx, tx, tenantID)
	if err != nil {
		return models.QrToken{}, err
	}

	now := time.Now().UTC()
	if !found {
		token, err = s.insertToken(ctx, tx, tenantID, settings, now)
	} else {
		token, err = s.rotateToken(ctx, tx, token, settings, now)
	}
	if err != nil {
		return models.QrToken{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QrToken{}, err
	}
	return token, nil
}

// ResolveQrToken validates a presented token value against the single
// authoritative row. Rotation replaces the stored value, so an older
// value simply no longer resolves.
func (s *Store) ResolveQrToken(ctx context.Context, token string) (models.QrToken, error) {
	var record models.QrToken
	var expiresNull sql.NullTime
	row := s.pool.QueryRow(ctx, `
		SELECT token_id, restaurant_id, token, type, requires_geolocation, issued_at, expires_at
		FROM qr_tokens
		WHERE token = $1
	`, token)
	if err := row.Scan(&record.TokenID, &record.TenantID, &record.Token, &record.Type,
		&record.RequiresGeo, &record.IssuedAt, &expiresNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QrToken{}, store.ErrTokenNotFound
		}
		return models.QrToken{}, err
	}
	record.ExpiresAt = nullTimePtr(expiresNull)

	if record.Type == models.TokenTypeDynamic {
		if record.ExpiresAt == nil || !time.Now().UTC().Before(*record.ExpiresAt) {
			return models.QrToken{}, store.ErrTokenExpired
		}
	}
	return record, nil
}

// lockTokenRow reads the tenant's token row under FOR UPDATE so rotation
// is a serialized read-modify-write and no two values can both be current.
func lockTokenRow(ctx context.Context, tx pgx.Tx, tenantID string) (models.QrToken, bool, error) {
	var token models.QrToken
	var expiresNull sql.NullTime
	row := tx.QueryRow(ctx, `
		SELECT token_id, restaurant_id, token, type, requires_geolocation, issued_at, expires_at
		FROM qr_tokens
		WHERE restaurant_id = $1
		FOR UPDATE
	`, tenantID)
	if err := row.Scan(&token.TokenID, &token.TenantID, &token.Token, &token.Type,
		&token.RequiresGeo, &token.IssuedAt, &expiresNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QrToken{}, false, nil
		}
		return models.QrToken{}, false, err
	}
	token.ExpiresAt = nullTimePtr(expiresNull)
	return token, true, nil
}

func (s *Store) insertToken(ctx context.Context, tx pgx.Tx, tenantID string, settings models.RestaurantSettings, now time.Time) (models.QrToken, error) {
	token := models.QrToken{
		TokenID:     uuid.NewString(),
		TenantID:    tenantID,
		Token:       newTokenValue(),
		Type:        settings.QrTokenType,
		RequiresGeo: settings.RequireGeolocation,
		IssuedAt:    now,
	}
	if token.Type != models.TokenTypeStatic {
		token.Type = models.TokenTypeDynamic
		expires := now.Add(s.tokenTTL(settings))
		token.ExpiresAt = &expires
	}

	var expiresValue interface{}
	if token.ExpiresAt != nil {
		expiresValue = *token.ExpiresAt
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO qr_tokens (token_id, restaurant_id, token, type, requires_geolocation, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, token.TokenID, token.TenantID, token.Token, token.Type, token.RequiresGeo, token.IssuedAt, expiresValue)
	if err != nil {
		return models.QrToken{}, err
	}
	return token, nil
}

func (s *Store) rotateToken(ctx context.Context, tx pgx.Tx, token models.QrToken, settings models.RestaurantSettings, now time.Time) (models.QrToken, error) {
	token.Token = newTokenValue()
	token.IssuedAt = now
	token.RequiresGeo = settings.RequireGeolocation
	token.ExpiresAt = nil
	if token.Type == models.TokenTypeDynamic {
		expires := now.Add(s.tokenTTL(settings))
		token.ExpiresAt = &expires
	}

	var expiresValue interface{}
	if token.ExpiresAt != nil {
		expiresValue = *token.ExpiresAt
	}
	_, err := tx.Exec(ctx, `
		UPDATE qr_tokens
		SET token = $1, issued_at = $2, expires_at = $3, requires_geolocation = $4
		WHERE token_id = $5
	`, token.Token, token.IssuedAt, expiresValue, token.RequiresGeo, token.TokenID)
	if err != nil {
		return models.QrToken{}, err
	}
	return token, nil
}

func (s *Store) tokenTTL(settings models.RestaurantSettings) time.Duration {
	if settings.QrTokenTTLSeconds > 0 {
		return time.Duration(settings.QrTokenTTLSeconds) * time.Second
	}
	return s.qrTokenTTL
}
