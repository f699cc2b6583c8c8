package inbox

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/threadbox/threadbox/internal/models"
	"github.com/threadbox/threadbox/internal/store"
)

func newTestService(t *testing.T) (*Service, store.DataStore) {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	return NewService(db, zerolog.Nop()), db
}

func createTestUser(t *testing.T, db store.DataStore, name, email string) *models.User {
	t.Helper()
	user, err := db.CreateUser(context.Background(), name, email, "not-a-real-hash")
	if err != nil {
		t.Fatal(err)
	}
	return user
}

func TestCreateThreadRoundTrip(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")
	ben := createTestUser(t, db, "Ben", "ben@test.com")

	detail, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject:        "Weekend plans",
		Body:           "Anyone up for a hike?",
		ParticipantIDs: []uuid.UUID{ben.ID},
	})
	if err != nil {
		t.Fatal(err)
	}

	if detail.Thread.Subject != "Weekend plans" {
		t.Errorf("subject = %q", detail.Thread.Subject)
	}
	if detail.Thread.CreatedBy != alice.ID {
		t.Errorf("created_by = %s, want %s", detail.Thread.CreatedBy, alice.ID)
	}
	if len(detail.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(detail.Participants))
	}
	if len(detail.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(detail.Messages))
	}
	if detail.Messages[0].Body != "Anyone up for a hike?" {
		t.Errorf("first message body = %q", detail.Messages[0].Body)
	}
	if detail.Messages[0].UserID != alice.ID {
		t.Errorf("first message author = %s", detail.Messages[0].UserID)
	}

	// The creator starts caught up, everyone else does not
	for _, p := range detail.Participants {
		if p.UserID == alice.ID && p.LastReadAt == nil {
			t.Error("creator last_read_at should be set")
		}
		if p.UserID == ben.ID && p.LastReadAt != nil {
			t.Error("recipient last_read_at should be null")
		}
	}
}

func TestCreateThreadValidation(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")

	_, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject:        "   ",
		Body:           "",
		ParticipantIDs: nil,
	})
	if CodeOf(err) != CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected *Error")
	}
	for _, field := range []string{"subject", "body", "participants"} {
		if len(e.Fields[field]) == 0 {
			t.Errorf("missing validation message for %q", field)
		}
	}
}

func TestCreateThreadSubjectTooLong(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")
	ben := createTestUser(t, db, "Ben", "ben@test.com")

	long := make([]byte, MaxSubjectLen+1)
	for i := range long {
		long[i] = 'x'
	}

	_, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject:        string(long),
		Body:           "body",
		ParticipantIDs: []uuid.UUID{ben.ID},
	})
	if CodeOf(err) != CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateThreadUnknownParticipantLeavesNothing(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")

	_, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject:        "Ghost thread",
		Body:           "hello?",
		ParticipantIDs: []uuid.UUID{uuid.New()},
	})
	if CodeOf(err) != CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	list, err := svc.ListThreads(ctx, alice.ID, ListThreadsParams{})
	if err != nil {
		t.Fatal(err)
	}
	if list.Meta.Total != 0 {
		t.Errorf("expected no threads persisted, got %d", list.Meta.Total)
	}
}

func TestCreateThreadDeduplicatesSelfReference(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")
	ben := createTestUser(t, db, "Ben", "ben@test.com")

	detail, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject:        "Dupes",
		Body:           "body",
		ParticipantIDs: []uuid.UUID{alice.ID, ben.ID, ben.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Participants) != 2 {
		t.Errorf("participants = %d, want 2", len(detail.Participants))
	}
}

func TestUnreadCountExcludesOwnMessages(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")
	ben := createTestUser(t, db, "Ben", "ben@test.com")

	if _, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject:        "Counts",
		Body:           "first",
		ParticipantIDs: []uuid.UUID{ben.ID},
	}); err != nil {
		t.Fatal(err)
	}

	aliceList, err := svc.ListThreads(ctx, alice.ID, ListThreadsParams{})
	if err != nil {
		t.Fatal(err)
	}
	if got := aliceList.Threads[0].UnreadCount; got != 0 {
		t.Errorf("author unread = %d, want 0", got)
	}

	benList, err := svc.ListThreads(ctx, ben.ID, ListThreadsParams{})
	if err != nil {
		t.Fatal(err)
	}
	if got := benList.Threads[0].UnreadCount; got != 1 {
		t.Errorf("recipient unread = %d, want 1", got)
	}
}

func TestViewMarksReadAndIsIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")
	ben := createTestUser(t, db, "Ben", "ben@test.com")

	created, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject:        "Read state",
		Body:           "first",
		ParticipantIDs: []uuid.UUID{ben.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.PostMessage(ctx, alice.ID, created.Thread.ID, "second"); err != nil {
		t.Fatal(err)
	}

	detail, err := svc.GetThread(ctx, ben.ID, created.Thread.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if detail.MarkedRead != 2 {
		t.Errorf("first view marked %d, want 2", detail.MarkedRead)
	}

	again, err := svc.GetThread(ctx, ben.ID, created.Thread.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if again.MarkedRead != 0 {
		t.Errorf("second view marked %d, want 0", again.MarkedRead)
	}
	for _, m := range again.Messages {
		if !m.IsRead {
			t.Errorf("message %s still unread after view", m.ID)
		}
	}

	benList, err := svc.ListThreads(ctx, ben.ID, ListThreadsParams{})
	if err != nil {
		t.Fatal(err)
	}
	if got := benList.Threads[0].UnreadCount; got != 0 {
		t.Errorf("unread after view = %d, want 0", got)
	}
}

func TestViewDoesNotTouchOtherViewers(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")
	ben := createTestUser(t, db, "Ben", "ben@test.com")
	carla := createTestUser(t, db, "Carla", "carla@test.com")

	created, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject:        "Three way",
		Body:           "hello both",
		ParticipantIDs: []uuid.UUID{ben.ID, carla.ID},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.GetThread(ctx, ben.ID, created.Thread.ID, 1); err != nil {
		t.Fatal(err)
	}

	// Ben viewing flips the shared message row, so Carla's derived count
	// drops too: read state is per message, not per viewer.
	carlaList, err := svc.ListThreads(ctx, carla.ID, ListThreadsParams{})
	if err != nil {
		t.Fatal(err)
	}
	if got := carlaList.Threads[0].UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0", got)
	}
}

func TestGetThreadAuthorization(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")
	ben := createTestUser(t, db, "Ben", "ben@test.com")
	mallory := createTestUser(t, db, "Mallory", "mallory@test.com")

	created, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject:        "Private",
		Body:           "secret",
		ParticipantIDs: []uuid.UUID{ben.ID},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.GetThread(ctx, mallory.ID, created.Thread.ID, 1); CodeOf(err) != CodeForbidden {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := svc.GetThread(ctx, alice.ID, uuid.New(), 1); CodeOf(err) != CodeNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestPostMessage(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")
	ben := createTestUser(t, db, "Ben", "ben@test.com")
	mallory := createTestUser(t, db, "Mallory", "mallory@test.com")

	created, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject:        "Replies",
		Body:           "first",
		ParticipantIDs: []uuid.UUID{ben.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	threadID := created.Thread.ID

	msg, err := svc.PostMessage(ctx, ben.ID, threadID, "a reply")
	if err != nil {
		t.Fatal(err)
	}
	if msg.IsRead {
		t.Error("new message should be unread")
	}
	if msg.UserName != "Ben" {
		t.Errorf("author name = %q", msg.UserName)
	}

	if _, err := svc.PostMessage(ctx, mallory.ID, threadID, "let me in"); CodeOf(err) != CodeForbidden {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := svc.PostMessage(ctx, ben.ID, uuid.New(), "hello?"); CodeOf(err) != CodeNotFound {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := svc.PostMessage(ctx, ben.ID, threadID, "   "); CodeOf(err) != CodeValidation {
		t.Errorf("expected validation error, got %v", err)
	}

	// Ben's reply is unread for Alice
	aliceList, err := svc.ListThreads(ctx, alice.ID, ListThreadsParams{})
	if err != nil {
		t.Fatal(err)
	}
	if got := aliceList.Threads[0].UnreadCount; got != 1 {
		t.Errorf("creator unread after reply = %d, want 1", got)
	}
}

func TestReplyBumpsThreadToTop(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")
	ben := createTestUser(t, db, "Ben", "ben@test.com")

	first, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject: "Older", Body: "one", ParticipantIDs: []uuid.UUID{ben.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject: "Newer", Body: "two", ParticipantIDs: []uuid.UUID{ben.ID},
	}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := svc.PostMessage(ctx, ben.ID, first.Thread.ID, "reviving"); err != nil {
		t.Fatal(err)
	}

	list, err := svc.ListThreads(ctx, alice.ID, ListThreadsParams{})
	if err != nil {
		t.Fatal(err)
	}
	if list.Threads[0].Subject != "Older" {
		t.Errorf("top thread = %q, want the one with the newest reply", list.Threads[0].Subject)
	}
}

func TestMessageOrderingAndPagination(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")
	ben := createTestUser(t, db, "Ben", "ben@test.com")

	created, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject: "Order", Body: "m0", ParticipantIDs: []uuid.UUID{ben.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= MessagesPerPage+2; i++ {
		if _, err := svc.PostMessage(ctx, alice.ID, created.Thread.ID, "reply"); err != nil {
			t.Fatal(err)
		}
	}

	detail, err := svc.GetThread(ctx, ben.ID, created.Thread.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Messages) != MessagesPerPage {
		t.Fatalf("page size = %d, want %d", len(detail.Messages), MessagesPerPage)
	}
	if detail.Messages[0].Body != "m0" {
		t.Errorf("first message = %q, want the thread opener", detail.Messages[0].Body)
	}
	for i := 1; i < len(detail.Messages); i++ {
		prev, cur := detail.Messages[i-1], detail.Messages[i]
		if cur.CreatedAt.Before(prev.CreatedAt) {
			t.Fatalf("messages out of order at %d", i)
		}
		if cur.CreatedAt.Equal(prev.CreatedAt) && cur.ID < prev.ID {
			t.Fatalf("tie not broken by id at %d", i)
		}
	}
	if detail.MessagesMeta.Total != MessagesPerPage+3 {
		t.Errorf("total = %d, want %d", detail.MessagesMeta.Total, MessagesPerPage+3)
	}
	if detail.MessagesMeta.LastPage != 2 {
		t.Errorf("last_page = %d, want 2", detail.MessagesMeta.LastPage)
	}

	page2, err := svc.GetThread(ctx, ben.ID, created.Thread.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2.Messages) != 3 {
		t.Errorf("page 2 size = %d, want 3", len(page2.Messages))
	}
}

func TestListThreadsFilters(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")
	ben := createTestUser(t, db, "Ben", "ben@test.com")

	budget, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject: "Budget review", Body: "numbers", ParticipantIDs: []uuid.UUID{ben.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
		Subject: "Lunch", Body: "tacos?", ParticipantIDs: []uuid.UUID{ben.ID},
	}); err != nil {
		t.Fatal(err)
	}

	search, err := svc.ListThreads(ctx, ben.ID, ListThreadsParams{Search: "budget"})
	if err != nil {
		t.Fatal(err)
	}
	if search.Meta.Total != 1 || search.Threads[0].Subject != "Budget review" {
		t.Errorf("search returned %d threads", search.Meta.Total)
	}

	// Ben reads the budget thread; only the lunch thread stays unread
	if _, err := svc.GetThread(ctx, ben.ID, budget.Thread.ID, 1); err != nil {
		t.Fatal(err)
	}
	unread, err := svc.ListThreads(ctx, ben.ID, ListThreadsParams{UnreadOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if unread.Meta.Total != 1 || unread.Threads[0].Subject != "Lunch" {
		t.Errorf("unread filter returned %d threads", unread.Meta.Total)
	}

	// A non-participant sees nothing at all
	carla := createTestUser(t, db, "Carla", "carla@test.com")
	empty, err := svc.ListThreads(ctx, carla.ID, ListThreadsParams{})
	if err != nil {
		t.Fatal(err)
	}
	if empty.Meta.Total != 0 {
		t.Errorf("outsider sees %d threads", empty.Meta.Total)
	}
}

func TestListThreadsPagination(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "Alice", "alice@test.com")
	ben := createTestUser(t, db, "Ben", "ben@test.com")

	for _, subject := range []string{"one", "two", "three"} {
		if _, err := svc.CreateThread(ctx, alice.ID, CreateThreadParams{
			Subject: subject, Body: "b", ParticipantIDs: []uuid.UUID{ben.ID},
		}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	page1, err := svc.ListThreads(ctx, alice.ID, ListThreadsParams{Page: 1, PerPage: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page1.Threads) != 2 || page1.Meta.LastPage != 2 || page1.Meta.Total != 3 {
		t.Errorf("page1: %d threads, last_page %d, total %d", len(page1.Threads), page1.Meta.LastPage, page1.Meta.Total)
	}
	if page1.Threads[0].Subject != "three" {
		t.Errorf("newest first, got %q", page1.Threads[0].Subject)
	}

	page2, err := svc.ListThreads(ctx, alice.ID, ListThreadsParams{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page2.Threads) != 1 {
		t.Errorf("page2: %d threads, want 1", len(page2.Threads))
	}

	// Listing carries the latest message and participants per row
	if page1.Threads[0].LatestMessage == nil {
		t.Error("latest message missing")
	}
	if len(page1.Threads[0].Participants) != 2 {
		t.Errorf("participants = %d, want 2", len(page1.Threads[0].Participants))
	}
}
