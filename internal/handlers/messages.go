package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/threadbox/threadbox/internal/api/middleware"
	"github.com/threadbox/threadbox/internal/metrics"
)

// PostMessageRequest represents the reply request body.
type PostMessageRequest struct {
	Body string `json:"body"`
}

// PostMessage handles appending a reply to an existing thread.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	threadID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid thread ID format")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.inbox.PostMessage(r.Context(), user.ID, threadID, req.Body)
	if err != nil {
		h.Fail(w, err)
		return
	}

	metrics.MessagesPosted.Inc()
	h.JSON(w, http.StatusCreated, messageResponse(*msg))
}
