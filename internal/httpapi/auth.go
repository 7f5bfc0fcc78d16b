package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"posresto/attendance-service/internal/models"
	"posresto/attendance-service/internal/store"
)

type authContextKey struct{}

// AuthMiddleware resolves the caller's session for staff-facing routes.
// Device-facing routes (webhooks, heartbeat, QR issuance) authenticate
// by other means and pass through.
func AuthMiddleware(st store.Store, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, err := st.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) (store.Session, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return store.Session{}, false
	}
	session, ok := value.(store.Session)
	return session, ok
}

// requireSession fetches the caller's session or writes a 401.
func requireSession(w http.ResponseWriter, r *http.Request) (store.Session, bool) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return store.Session{}, false
	}
	return session, true
}

// requireScheduler checks that the actor may manage shifts for other
// staff members.
func requireScheduler(w http.ResponseWriter, session store.Session) bool {
	if !session.Role.CanSchedule() {
		writeError(w, http.StatusForbidden, "access_denied", "scheduling requires manager role or above")
		return false
	}
	return true
}

// requireSelfOrScheduler allows an actor to act on themselves, and on
// others only with scheduling authority.
func requireSelfOrScheduler(w http.ResponseWriter, session store.Session, userID string) bool {
	if session.UserID == userID {
		return true
	}
	if !session.Role.AtLeast(models.RoleManager) {
		writeError(w, http.StatusForbidden, "access_denied", "cannot act for another staff member")
		return false
	}
	return true
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

// deviceAPIKey extracts the device credential: X-API-Key first, then a
// Bearer-prefixed Authorization header.
func deviceAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch {
	case r.URL.Path == "/healthz" || r.URL.Path == "/metrics":
		return true
	case r.URL.Path == "/heartbeat":
		return true
	case strings.HasPrefix(r.URL.Path, "/webhook/"):
		return true
	case strings.HasPrefix(r.URL.Path, "/qr/"):
		return true
	case strings.HasPrefix(r.URL.Path, "/attendance/pin/"):
		return true
	default:
		return r.Method == http.MethodOptions
	}
}
