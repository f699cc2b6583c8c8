package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/threadbox/threadbox/internal/api/middleware"
	"github.com/threadbox/threadbox/internal/auth"
	"github.com/threadbox/threadbox/internal/metrics"
)

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse represents an issued bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

// UserResponse represents the current principal.
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Login handles credential exchange for a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Email == "" || req.Password == "" {
		h.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		h.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, claims, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	h.JSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   claims.ExpiresAt.Unix(),
	})
}

// Logout revokes the presented token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if h.redis != nil {
		if err := h.redis.RevokeToken(r.Context(), claims.ID, claims.TTLRemaining()); err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to revoke token")
			return
		}
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Refresh revokes the presented token and issues a fresh one.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	claims := middleware.ClaimsFromContext(r.Context())
	if user == nil || claims == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	token, newClaims, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	if h.redis != nil {
		if err := h.redis.RevokeToken(r.Context(), claims.ID, claims.TTLRemaining()); err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to revoke token")
			return
		}
	}

	h.JSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   newClaims.ExpiresAt.Unix(),
	})
}

// Me returns the current principal.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	h.JSON(w, http.StatusOK, UserResponse{
		ID:    user.ID.String(),
		Name:  user.Name,
		Email: user.Email,
	})
}
