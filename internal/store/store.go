package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/threadbox/threadbox/internal/models"
)

// ListThreadsOptions controls the thread listing query.
type ListThreadsOptions struct {
	Limit      int
	Offset     int
	Search     string // substring match on subject, empty means no filter
	UnreadOnly bool   // only threads with unread_count > 0 for the viewer
}

// DataStore defines the interface for durable storage of users, threads,
// messages and participant links. Both PostgresStore and SQLiteStore
// implement this interface.
//
// Lookup methods return (nil, nil) when the row does not exist. The two
// multi-statement operations — CreateThread and MarkThreadRead — run inside
// a single transaction and either commit fully or leave no trace.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// FilterExistingUsers returns the subset of ids that reference existing
	// users, in no particular order.
	FilterExistingUsers(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)

	// Thread operations
	//
	// CreateThread atomically creates the thread row, its first message
	// (authored by createdBy, unread) and one participant link per id in
	// participantIDs. The creator's link gets lastReadAt set to the creation
	// time, all others get null. participantIDs must already be deduplicated
	// and include the creator.
	CreateThread(ctx context.Context, subject string, createdBy uuid.UUID, body string, participantIDs []uuid.UUID) (*models.Thread, error)
	GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error)
	// ListThreadsForUser returns one page of threads the user participates
	// in, newest activity first, each with its derived unread count. The
	// counts come from the same grouped query as the page itself: listing N
	// threads never issues N unread queries.
	ListThreadsForUser(ctx context.Context, userID uuid.UUID, opts ListThreadsOptions) ([]models.ThreadSummary, int, error)

	// Participant ledger
	IsParticipant(ctx context.Context, threadID, userID uuid.UUID) (bool, error)
	ListParticipants(ctx context.Context, threadID uuid.UUID) ([]models.Participant, error)
	// ParticipantsForThreads bulk-loads participant sets for a page of
	// threads in a single query.
	ParticipantsForThreads(ctx context.Context, threadIDs []uuid.UUID) (map[uuid.UUID][]models.Participant, error)
	// MarkThreadRead atomically flips every unread message in the thread not
	// authored by viewerID to read and upserts the viewer's last_read_at.
	// Returns the number of messages flipped; zero on re-view is not an
	// error.
	MarkThreadRead(ctx context.Context, threadID, viewerID uuid.UUID, at time.Time) (int64, error)

	// Message operations
	//
	// AppendMessage inserts an unread message and bumps the owning thread's
	// updated_at in the same transaction.
	AppendMessage(ctx context.Context, threadID, authorID uuid.UUID, body string) (*models.Message, error)
	// ListMessages returns one page in (created_at, id) ascending order plus
	// the total message count for the thread.
	ListMessages(ctx context.Context, threadID uuid.UUID, limit, offset int) ([]models.Message, int, error)
	// LatestMessages bulk-loads the most recent message of each thread.
	LatestMessages(ctx context.Context, threadIDs []uuid.UUID) (map[uuid.UUID]models.Message, error)
}
