package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/threadbox/threadbox/internal/auth"
	"github.com/threadbox/threadbox/internal/models"
	"github.com/threadbox/threadbox/internal/store"
)

type contextKey string

const (
	userContextKey   contextKey = "user"
	claimsContextKey contextKey = "claims"
)

// AuthMiddleware resolves bearer tokens into principals. Every core
// operation receives the principal explicitly from the request context;
// nothing downstream reads ambient auth state.
type AuthMiddleware struct {
	tokens *auth.TokenManager
	db     store.DataStore
	redis  *store.RedisStore // optional: denylist disabled when nil
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(tokens *auth.TokenManager, db store.DataStore, redis *store.RedisStore) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, db: db, redis: redis}
}

// RequireAuth verifies the Authorization header, rejects revoked tokens and
// loads the user into the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := m.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if m.redis != nil && m.redis.IsTokenRevoked(r.Context(), claims.ID) {
			jsonError(w, http.StatusUnauthorized, "token has been revoked")
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid token subject")
			return
		}

		user, err := m.db.GetUserByID(r.Context(), userID)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "database error")
			return
		}
		if user == nil {
			jsonError(w, http.StatusUnauthorized, "user not found")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// UserFromContext retrieves the authenticated user from the request context.
func UserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(userContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// ClaimsFromContext retrieves the verified token claims from the request
// context. Used by logout/refresh to revoke the presented token.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}
