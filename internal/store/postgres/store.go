package postgres

import (
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool       *pgxpool.Pool
	qrTokenTTL time.Duration
}

type Options struct {
	// QrTokenTTL is the fallback dynamic-token lifetime when the tenant
	// has no configured TTL.
	QrTokenTTL time.Duration
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	ttl := options.QrTokenTTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Store{
		pool:       pool,
		qrTokenTTL: ttl,
	}
}

// HashAPIKey is the stored form of a device API key. Device keys are
// high-entropy random values, so an unsalted digest is sufficient.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func apiKeyMatches(storedHash, key string) bool {
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(HashAPIKey(key))) == 1
}

// newTokenValue mints an opaque QR token value.
func newTokenValue() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func nullFloatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	f := value.Float64
	return &f
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func jsonBytes(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

// dateOf truncates t to its calendar date in t's own location, so a
// device timestamp interpreted in the tenant timezone lands on the
// tenant-local work date.
func dateOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// staffLockKey is the advisory-lock key serializing the Idle/Clocked-In
// transition per staff member within a tenant.
func staffLockKey(tenantID, userID string) string {
	return tenantID + "|" + userID
}
