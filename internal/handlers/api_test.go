package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/threadbox/threadbox/internal/api"
	"github.com/threadbox/threadbox/internal/auth"
	"github.com/threadbox/threadbox/internal/inbox"
	"github.com/threadbox/threadbox/internal/store"
)

type testServer struct {
	srv *httptest.Server
	db  store.DataStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	logger := zerolog.Nop()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	svc := inbox.NewService(db, logger)

	srv := httptest.NewServer(api.NewRouter(logger, svc, db, nil, tokens))
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, db: db}
}

// registerUser creates a user directly in the store and logs them in.
func (ts *testServer) registerUser(t *testing.T, name, email string) (uuid.UUID, string) {
	t.Helper()

	hash, err := auth.HashPassword("password")
	if err != nil {
		t.Fatal(err)
	}
	user, err := ts.db.CreateUser(context.Background(), name, email, hash)
	if err != nil {
		t.Fatal(err)
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	ts.request(t, "POST", "/api/login", "", map[string]string{
		"email": email, "password": "password",
	}, http.StatusOK, &resp)
	if resp.TokenType != "bearer" {
		t.Fatalf("token_type = %q", resp.TokenType)
	}
	return user.ID, resp.AccessToken
}

// request performs a JSON request and decodes the response into out.
func (ts *testServer) request(t *testing.T, method, path, token string, body any, wantStatus int, out any) {
	t.Helper()

	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, bytes.NewReader(reqBody))
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var errBody map[string]any
		json.NewDecoder(resp.Body).Decode(&errBody)
		t.Fatalf("%s %s: status %d, want %d (body %v)", method, path, resp.StatusCode, wantStatus, errBody)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.registerUser(t, "Alice", "alice@test.com")

	ts.request(t, "POST", "/api/login", "", map[string]string{
		"email": "alice@test.com", "password": "nope",
	}, http.StatusUnauthorized, nil)
	ts.request(t, "POST", "/api/login", "", map[string]string{
		"email": "ghost@test.com", "password": "password",
	}, http.StatusUnauthorized, nil)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	ts.request(t, "GET", "/api/threads", "", nil, http.StatusUnauthorized, nil)
	ts.request(t, "GET", "/api/user", "bogus-token", nil, http.StatusUnauthorized, nil)
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)
	userID, token := ts.registerUser(t, "Alice", "alice@test.com")

	var me struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	ts.request(t, "GET", "/api/user", token, nil, http.StatusOK, &me)
	if me.ID != userID.String() || me.Name != "Alice" || me.Email != "alice@test.com" {
		t.Errorf("unexpected principal: %+v", me)
	}
}

func TestThreadLifecycle(t *testing.T) {
	ts := newTestServer(t)
	aliceID, aliceToken := ts.registerUser(t, "Alice", "alice@test.com")
	benID, benToken := ts.registerUser(t, "Ben", "ben@test.com")

	// Alice starts a thread with Ben
	var created struct {
		ID           string `json:"id"`
		Subject      string `json:"subject"`
		CreatedBy    struct{ ID, Name string } `json:"created_by"`
		Participants []struct{ ID, Name string } `json:"participants"`
		Messages     struct {
			Data  []struct{ Body string } `json:"data"`
			Total int                     `json:"total"`
		} `json:"messages"`
	}
	ts.request(t, "POST", "/api/threads", aliceToken, map[string]any{
		"subject":      "Project kickoff",
		"body":         "Shall we start Monday?",
		"participants": []string{benID.String()},
	}, http.StatusCreated, &created)

	if created.Subject != "Project kickoff" || created.CreatedBy.ID != aliceID.String() {
		t.Errorf("unexpected thread: %+v", created)
	}
	if len(created.Participants) != 2 || created.Messages.Total != 1 {
		t.Errorf("participants %d, messages %d", len(created.Participants), created.Messages.Total)
	}

	// Ben sees one unread thread
	var list struct {
		Data []struct {
			ID            string `json:"id"`
			UnreadCount   int    `json:"unread_count"`
			LatestMessage *struct {
				Body string `json:"body"`
			} `json:"latest_message"`
		} `json:"data"`
		Meta struct{ Total int } `json:"meta"`
	}
	ts.request(t, "GET", "/api/threads", benToken, nil, http.StatusOK, &list)
	if list.Meta.Total != 1 || list.Data[0].UnreadCount != 1 {
		t.Fatalf("ben's inbox: %+v", list)
	}
	if list.Data[0].LatestMessage == nil || list.Data[0].LatestMessage.Body != "Shall we start Monday?" {
		t.Error("latest message missing from listing")
	}

	// Viewing marks it read
	ts.request(t, "GET", "/api/threads/"+created.ID, benToken, nil, http.StatusOK, nil)
	ts.request(t, "GET", "/api/threads", benToken, nil, http.StatusOK, &list)
	if list.Data[0].UnreadCount != 0 {
		t.Errorf("unread after view = %d", list.Data[0].UnreadCount)
	}

	// Ben replies; Alice has something unread again
	var msg struct {
		ID     string `json:"id"`
		IsRead bool   `json:"is_read"`
		User   struct{ Name string } `json:"user"`
	}
	ts.request(t, "POST", fmt.Sprintf("/api/threads/%s/messages", created.ID), benToken, map[string]string{
		"body": "Monday works",
	}, http.StatusCreated, &msg)
	if msg.IsRead || msg.User.Name != "Ben" {
		t.Errorf("unexpected message: %+v", msg)
	}

	ts.request(t, "GET", "/api/threads", aliceToken, nil, http.StatusOK, &list)
	if list.Data[0].UnreadCount != 1 {
		t.Errorf("alice unread after reply = %d", list.Data[0].UnreadCount)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.registerUser(t, "Alice", "alice@test.com")
	benID, _ := ts.registerUser(t, "Ben", "ben@test.com")
	_, malloryToken := ts.registerUser(t, "Mallory", "mallory@test.com")

	var created struct {
		ID string `json:"id"`
	}
	ts.request(t, "POST", "/api/threads", aliceToken, map[string]any{
		"subject":      "Private",
		"body":         "between us",
		"participants": []string{benID.String()},
	}, http.StatusCreated, &created)

	// Outsider gets 403, unknown id 404, malformed id 400
	ts.request(t, "GET", "/api/threads/"+created.ID, malloryToken, nil, http.StatusForbidden, nil)
	ts.request(t, "POST", "/api/threads/"+created.ID+"/messages", malloryToken,
		map[string]string{"body": "hi"}, http.StatusForbidden, nil)
	ts.request(t, "GET", "/api/threads/"+uuid.NewString(), aliceToken, nil, http.StatusNotFound, nil)
	ts.request(t, "GET", "/api/threads/not-a-uuid", aliceToken, nil, http.StatusBadRequest, nil)

	// Validation failures carry per-field messages
	var validation struct {
		Error  string              `json:"error"`
		Errors map[string][]string `json:"errors"`
	}
	ts.request(t, "POST", "/api/threads", aliceToken, map[string]any{
		"subject": "", "body": "", "participants": []string{},
	}, http.StatusUnprocessableEntity, &validation)
	for _, field := range []string{"subject", "body", "participants"} {
		if len(validation.Errors[field]) == 0 {
			t.Errorf("missing validation message for %q", field)
		}
	}

	ts.request(t, "POST", "/api/threads", aliceToken, map[string]any{
		"subject": "Ghosts", "body": "hello", "participants": []string{uuid.NewString()},
	}, http.StatusUnprocessableEntity, &validation)
	if len(validation.Errors["participants"]) == 0 {
		t.Error("unknown participant should be a validation failure")
	}

	ts.request(t, "POST", fmt.Sprintf("/api/threads/%s/messages", created.ID), aliceToken,
		map[string]string{"body": "   "}, http.StatusUnprocessableEntity, nil)
}

func TestRefreshIssuesNewToken(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.registerUser(t, "Alice", "alice@test.com")

	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	ts.request(t, "POST", "/api/refresh", token, nil, http.StatusOK, &refreshed)
	if refreshed.AccessToken == "" || refreshed.AccessToken == token {
		t.Error("expected a fresh token")
	}

	// Without Redis the old token stays valid; the new one must work too
	ts.request(t, "GET", "/api/user", refreshed.AccessToken, nil, http.StatusOK, nil)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var health struct {
		Status string                     `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	ts.request(t, "GET", "/health", "", nil, http.StatusOK, &health)
	if health.Status != "healthy" {
		t.Errorf("status = %q", health.Status)
	}
	if health.Checks["database"]["status"] != "pass" {
		t.Errorf("database check: %v", health.Checks["database"])
	}
}
