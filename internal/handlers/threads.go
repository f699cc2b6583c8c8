package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/threadbox/threadbox/internal/api/middleware"
	"github.com/threadbox/threadbox/internal/inbox"
	"github.com/threadbox/threadbox/internal/metrics"
	"github.com/threadbox/threadbox/internal/models"
)

// UserRef is a compact user reference in thread responses.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID        string  `json:"id"`
	Body      string  `json:"body"`
	IsRead    bool    `json:"is_read"`
	User      UserRef `json:"user"`
	CreatedAt string  `json:"created_at"`
}

// MessagePage is a paginated message collection inside thread detail.
type MessagePage struct {
	Data        []MessageResponse `json:"data"`
	CurrentPage int               `json:"current_page"`
	LastPage    int               `json:"last_page"`
	PerPage     int               `json:"per_page"`
	Total       int               `json:"total"`
}

// ThreadSummaryResponse is one row of the thread listing.
type ThreadSummaryResponse struct {
	ID            string           `json:"id"`
	Subject       string           `json:"subject"`
	CreatedBy     UserRef          `json:"created_by"`
	CreatedAt     string           `json:"created_at"`
	UpdatedAt     string           `json:"updated_at"`
	Participants  []UserRef        `json:"participants"`
	LatestMessage *MessageResponse `json:"latest_message,omitempty"`
	UnreadCount   int              `json:"unread_count"`
}

// ThreadListResponse is the paginated thread listing.
type ThreadListResponse struct {
	Data []ThreadSummaryResponse `json:"data"`
	Meta inbox.PageMeta          `json:"meta"`
}

// ThreadDetailResponse is the full thread view with one page of messages.
type ThreadDetailResponse struct {
	ID           string      `json:"id"`
	Subject      string      `json:"subject"`
	CreatedBy    UserRef     `json:"created_by"`
	CreatedAt    string      `json:"created_at"`
	UpdatedAt    string      `json:"updated_at"`
	Participants []UserRef   `json:"participants"`
	Messages     MessagePage `json:"messages"`
}

// CreateThreadRequest represents the thread creation request body.
type CreateThreadRequest struct {
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
	Participants []string `json:"participants"`
}

func iso(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func messageResponse(m models.Message) MessageResponse {
	return MessageResponse{
		ID:     m.ID,
		Body:   m.Body,
		IsRead: m.IsRead,
		User: UserRef{
			ID:    m.UserID.String(),
			Name:  m.UserName,
			Email: m.UserEmail,
		},
		CreatedAt: iso(m.CreatedAt),
	}
}

func participantRefs(participants []models.Participant) []UserRef {
	refs := make([]UserRef, len(participants))
	for i, p := range participants {
		refs[i] = UserRef{ID: p.UserID.String(), Name: p.Name}
	}
	return refs
}

// creatorRef resolves the creator's display name from the participant set.
// The creator is always a participant, so the lookup cannot miss in practice.
func creatorRef(createdBy uuid.UUID, participants []models.Participant) UserRef {
	for _, p := range participants {
		if p.UserID == createdBy {
			return UserRef{ID: p.UserID.String(), Name: p.Name}
		}
	}
	return UserRef{ID: createdBy.String()}
}

func threadDetailResponse(d *inbox.ThreadDetail) ThreadDetailResponse {
	msgs := make([]MessageResponse, len(d.Messages))
	for i, m := range d.Messages {
		msgs[i] = messageResponse(m)
	}
	return ThreadDetailResponse{
		ID:           d.Thread.ID.String(),
		Subject:      d.Thread.Subject,
		CreatedBy:    creatorRef(d.Thread.CreatedBy, d.Participants),
		CreatedAt:    iso(d.Thread.CreatedAt),
		UpdatedAt:    iso(d.Thread.UpdatedAt),
		Participants: participantRefs(d.Participants),
		Messages: MessagePage{
			Data:        msgs,
			CurrentPage: d.MessagesMeta.CurrentPage,
			LastPage:    d.MessagesMeta.LastPage,
			PerPage:     d.MessagesMeta.PerPage,
			Total:       d.MessagesMeta.Total,
		},
	}
}

// ListThreads handles the thread listing with pagination, subject search and
// the unread-only filter.
func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	list, err := h.inbox.ListThreads(r.Context(), user.ID, inbox.ListThreadsParams{
		Page:       page,
		PerPage:    perPage,
		Search:     q.Get("search"),
		UnreadOnly: q.Get("unread") == "true",
	})
	if err != nil {
		h.Fail(w, err)
		return
	}

	data := make([]ThreadSummaryResponse, len(list.Threads))
	for i, t := range list.Threads {
		row := ThreadSummaryResponse{
			ID:           t.ID.String(),
			Subject:      t.Subject,
			CreatedBy:    creatorRef(t.CreatedBy, t.Participants),
			CreatedAt:    iso(t.CreatedAt),
			UpdatedAt:    iso(t.UpdatedAt),
			Participants: participantRefs(t.Participants),
			UnreadCount:  t.UnreadCount,
		}
		if t.LatestMessage != nil {
			msg := messageResponse(*t.LatestMessage)
			row.LatestMessage = &msg
		}
		data[i] = row
	}

	h.JSON(w, http.StatusOK, ThreadListResponse{Data: data, Meta: list.Meta})
}

// GetThread handles the thread detail view. Fetching the detail is the
// mark-as-read transition for the viewer.
func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
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

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	detail, err := h.inbox.GetThread(r.Context(), user.ID, threadID, page)
	if err != nil {
		h.Fail(w, err)
		return
	}

	if detail.MarkedRead > 0 {
		metrics.MessagesMarkedRead.Add(float64(detail.MarkedRead))
	}

	h.JSON(w, http.StatusOK, threadDetailResponse(detail))
}

// CreateThread handles thread creation with its first message and
// participant set.
func (h *Handler) CreateThread(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	participantIDs := make([]uuid.UUID, 0, len(req.Participants))
	for _, raw := range req.Participants {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.JSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  "the given data was invalid",
				"errors": map[string][]string{"participants": {"one or more participants do not exist"}},
			})
			return
		}
		participantIDs = append(participantIDs, id)
	}

	detail, err := h.inbox.CreateThread(r.Context(), user.ID, inbox.CreateThreadParams{
		Subject:        req.Subject,
		Body:           req.Body,
		ParticipantIDs: participantIDs,
	})
	if err != nil {
		h.Fail(w, err)
		return
	}

	metrics.ThreadsCreated.Inc()
	h.JSON(w, http.StatusCreated, threadDetailResponse(detail))
}
