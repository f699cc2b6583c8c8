package inbox

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/threadbox/threadbox/internal/models"
	"github.com/threadbox/threadbox/internal/store"
)

const (
	// DefaultPerPage is the thread listing page size.
	DefaultPerPage = 15
	// MaxPerPage caps caller-supplied page sizes.
	MaxPerPage = 100
	// MessagesPerPage is the fixed message page size in thread detail.
	MessagesPerPage = 20
	// MaxSubjectLen is the longest accepted thread subject.
	MaxSubjectLen = 255
)

// Service owns the thread aggregate: every operation takes the acting
// principal explicitly, authorizes it against the participant ledger, and
// delegates the atomic multi-row writes to the store.
type Service struct {
	store  store.DataStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates the inbox service.
func NewService(st store.DataStore, logger zerolog.Logger) *Service {
	return &Service{store: st, logger: logger, now: time.Now}
}

// PageMeta is pagination metadata in the listing responses.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

func pageMeta(page, perPage, total int) PageMeta {
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}
	return PageMeta{CurrentPage: page, LastPage: lastPage, PerPage: perPage, Total: total}
}

// ListThreadsParams are the thread listing filters.
type ListThreadsParams struct {
	Page       int
	PerPage    int
	Search     string
	UnreadOnly bool
}

// ThreadListItem is one row of the thread listing.
type ThreadListItem struct {
	models.ThreadSummary
	Participants  []models.Participant
	LatestMessage *models.Message
}

// ThreadList is one page of a user's threads.
type ThreadList struct {
	Threads []ThreadListItem
	Meta    PageMeta
}

// ThreadDetail is the full view of a thread: the row, its participant set
// and one page of messages.
type ThreadDetail struct {
	Thread       models.Thread
	Participants []models.Participant
	Messages     []models.Message
	MessagesMeta PageMeta

	// MarkedRead is how many messages the view transition flipped to read.
	MarkedRead int64
}

// ListThreads returns one page of the viewer's threads, newest activity
// first, each with its unread count, participant set and latest message.
// The store computes unread counts inside the page query and the participant
// and latest-message lookups are single bulk queries, so the query count is
// independent of the page size.
func (s *Service) ListThreads(ctx context.Context, viewerID uuid.UUID, params ListThreadsParams) (*ThreadList, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	perPage := params.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	summaries, total, err := s.store.ListThreadsForUser(ctx, viewerID, store.ListThreadsOptions{
		Limit:      perPage,
		Offset:     (page - 1) * perPage,
		Search:     params.Search,
		UnreadOnly: params.UnreadOnly,
	})
	if err != nil {
		return nil, err
	}

	threadIDs := make([]uuid.UUID, len(summaries))
	for i, t := range summaries {
		threadIDs[i] = t.ID
	}

	latest, err := s.store.LatestMessages(ctx, threadIDs)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.ParticipantsForThreads(ctx, threadIDs)
	if err != nil {
		return nil, err
	}

	items := make([]ThreadListItem, len(summaries))
	for i, t := range summaries {
		items[i] = ThreadListItem{ThreadSummary: t, Participants: participants[t.ID]}
		if m, ok := latest[t.ID]; ok {
			msg := m
			items[i].LatestMessage = &msg
		}
	}

	return &ThreadList{Threads: items, Meta: pageMeta(page, perPage, total)}, nil
}

// GetThread is the view transition. It authorizes the viewer, loads the
// detail with one page of messages, then atomically flips every unread
// message from other authors to read and stamps the viewer's last_read_at.
// Re-viewing an already-read thread flips zero rows and is not an error.
//
// The returned message page reflects the state before the transition, same
// as the listing the viewer just came from.
func (s *Service) GetThread(ctx context.Context, viewerID, threadID uuid.UUID, messagePage int) (*ThreadDetail, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, NotFound("thread not found")
	}

	participants, err := s.store.ListParticipants(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !CanView(viewerID, participants) {
		return nil, Forbidden("you are not a participant of this thread")
	}

	if messagePage < 1 {
		messagePage = 1
	}
	messages, total, err := s.store.ListMessages(ctx, threadID, MessagesPerPage, (messagePage-1)*MessagesPerPage)
	if err != nil {
		return nil, err
	}

	marked, err := s.store.MarkThreadRead(ctx, threadID, viewerID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if marked > 0 {
		s.logger.Debug().
			Str("thread_id", threadID.String()).
			Str("viewer_id", viewerID.String()).
			Int64("messages", marked).
			Msg("marked messages read")
	}

	return &ThreadDetail{
		Thread:       *thread,
		Participants: participants,
		Messages:     messages,
		MessagesMeta: pageMeta(messagePage, MessagesPerPage, total),
		MarkedRead:   marked,
	}, nil
}

// CreateThreadParams is the thread creation input.
type CreateThreadParams struct {
	Subject        string
	Body           string
	ParticipantIDs []uuid.UUID
}

// CreateThread validates the input, resolves the participant set and creates
// the thread, its first message and all participant links in one store
// transaction. Any failure leaves nothing persisted.
//
// The participant set is the deduplicated union of the creator and the
// supplied ids; a redundant self-reference is dropped, not rejected.
func (s *Service) CreateThread(ctx context.Context, creatorID uuid.UUID, params CreateThreadParams) (*ThreadDetail, error) {
	fields := make(map[string][]string)

	subject := strings.TrimSpace(params.Subject)
	if subject == "" {
		fields["subject"] = append(fields["subject"], "subject is required")
	} else if len(subject) > MaxSubjectLen {
		fields["subject"] = append(fields["subject"], "subject must not exceed 255 characters")
	}

	body := strings.TrimSpace(params.Body)
	if body == "" {
		fields["body"] = append(fields["body"], "body is required")
	}

	if len(params.ParticipantIDs) == 0 {
		fields["participants"] = append(fields["participants"], "at least one participant is required")
	}

	if len(fields) > 0 {
		return nil, Validation("the given data was invalid", fields)
	}

	// Deduplicated union of creator and supplied participants. The creator
	// is always a member, so a thread can never end up with an empty
	// participant set.
	seen := map[uuid.UUID]bool{creatorID: true}
	participantIDs := []uuid.UUID{creatorID}
	var others []uuid.UUID
	for _, id := range params.ParticipantIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		participantIDs = append(participantIDs, id)
		others = append(others, id)
	}

	if len(others) > 0 {
		existing, err := s.store.FilterExistingUsers(ctx, others)
		if err != nil {
			return nil, err
		}
		if len(existing) != len(others) {
			return nil, Validation("the given data was invalid", map[string][]string{
				"participants": {"one or more participants do not exist"},
			})
		}
	}

	thread, err := s.store.CreateThread(ctx, subject, creatorID, body, participantIDs)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("thread_id", thread.ID.String()).
		Str("creator_id", creatorID.String()).
		Int("participants", len(participantIDs)).
		Msg("thread created")

	participants, err := s.store.ListParticipants(ctx, thread.ID)
	if err != nil {
		return nil, err
	}
	messages, total, err := s.store.ListMessages(ctx, thread.ID, MessagesPerPage, 0)
	if err != nil {
		return nil, err
	}

	return &ThreadDetail{
		Thread:       *thread,
		Participants: participants,
		Messages:     messages,
		MessagesMeta: pageMeta(1, MessagesPerPage, total),
	}, nil
}

// PostMessage appends a reply to an existing thread. The author must be a
// participant. The append bumps the thread's updated_at and touches no read
// state: the new message is simply unread for everyone else.
func (s *Service) PostMessage(ctx context.Context, authorID, threadID uuid.UUID, body string) (*models.Message, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, NotFound("thread not found")
	}

	isParticipant, err := s.store.IsParticipant(ctx, threadID, authorID)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, Forbidden("you are not a participant of this thread")
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, Validation("the given data was invalid", map[string][]string{
			"body": {"body is required"},
		})
	}

	return s.store.AppendMessage(ctx, threadID, authorID, body)
}
