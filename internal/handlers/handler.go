package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/threadbox/threadbox/internal/auth"
	"github.com/threadbox/threadbox/internal/inbox"
	"github.com/threadbox/threadbox/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	inbox  *inbox.Service
	db     store.DataStore
	redis  *store.RedisStore // optional: token revocation disabled when nil
	tokens *auth.TokenManager
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(svc *inbox.Service, db store.DataStore, redis *store.RedisStore, tokens *auth.TokenManager) *Handler {
	return &Handler{inbox: svc, db: db, redis: redis, tokens: tokens}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Fail maps a core error onto the HTTP surface. Validation errors carry
// their per-field messages; anything uncategorized is a 500.
func (h *Handler) Fail(w http.ResponseWriter, err error) {
	var e *inbox.Error
	if !errors.As(err, &e) {
		h.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch e.Code {
	case inbox.CodeValidation:
		h.JSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  e.Message,
			"errors": e.Fields,
		})
	case inbox.CodeUnauthenticated:
		h.Error(w, http.StatusUnauthorized, e.Message)
	case inbox.CodeForbidden:
		h.Error(w, http.StatusForbidden, e.Message)
	case inbox.CodeNotFound:
		h.Error(w, http.StatusNotFound, e.Message)
	default:
		h.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
