// Package threadbox provides a client for the Threadbox messaging API.
package threadbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Client is a Threadbox API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Token      string
	HTTPClient *http.Client
}

// Config holds the stored session.
type Config struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// NewClient creates a new Threadbox client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("THREADBOX_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".threadbox")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads the stored session from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "session.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	if config.ExpiresAt > 0 && time.Now().Unix() >= config.ExpiresAt {
		return fmt.Errorf("stored session expired")
	}

	c.Token = config.Token
	return nil
}

// SaveConfig saves the session to disk.
func (c *Client) SaveConfig(expiresAt int64) error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Config{Token: c.Token, ExpiresAt: expiresAt}, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "session.json"), data, 0600)
}

// doRequest performs an HTTP request. When authed is set, the stored bearer
// token is attached.
func (c *Client) doRequest(method, path string, body []byte, authed bool) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if authed {
		if c.Token == "" {
			return nil, fmt.Errorf("not logged in, run login first")
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("threadbox error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is the response from login and refresh.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Login exchanges credentials for a bearer token and stores it.
func (c *Client) Login(email, password string) (*TokenResponse, error) {
	body, _ := json.Marshal(LoginRequest{Email: email, Password: password})
	respBody, err := c.doRequest("POST", "/api/login", body, false)
	if err != nil {
		return nil, err
	}

	var resp TokenResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.Token = resp.AccessToken
	if err := c.SaveConfig(resp.ExpiresAt); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Logout revokes the stored token.
func (c *Client) Logout() error {
	if _, err := c.doRequest("POST", "/api/logout", nil, true); err != nil {
		return err
	}
	c.Token = ""
	return c.SaveConfig(0)
}

// UserRef is a compact user reference.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Message represents a message in a thread.
type Message struct {
	ID        string  `json:"id"`
	Body      string  `json:"body"`
	IsRead    bool    `json:"is_read"`
	User      UserRef `json:"user"`
	CreatedAt string  `json:"created_at"`
}

// MessagePage is a paginated message collection.
type MessagePage struct {
	Data        []Message `json:"data"`
	CurrentPage int       `json:"current_page"`
	LastPage    int       `json:"last_page"`
	PerPage     int       `json:"per_page"`
	Total       int       `json:"total"`
}

// ThreadSummary is one row of the thread listing.
type ThreadSummary struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	CreatedBy     UserRef   `json:"created_by"`
	CreatedAt     string    `json:"created_at"`
	UpdatedAt     string    `json:"updated_at"`
	Participants  []UserRef `json:"participants"`
	LatestMessage *Message  `json:"latest_message,omitempty"`
	UnreadCount   int       `json:"unread_count"`
}

// PageMeta is pagination metadata.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// ThreadList is the paginated thread listing.
type ThreadList struct {
	Data []ThreadSummary `json:"data"`
	Meta PageMeta        `json:"meta"`
}

// ListThreadsOptions filters the thread listing. The zero value lists the
// first page with defaults.
type ListThreadsOptions struct {
	Page       int
	PerPage    int
	Search     string
	UnreadOnly bool
}

// ListThreads lists the caller's threads, newest activity first.
func (c *Client) ListThreads(opts ListThreadsOptions) (*ThreadList, error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.UnreadOnly {
		q.Set("unread", "true")
	}

	path := "/api/threads"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	respBody, err := c.doRequest("GET", path, nil, true)
	if err != nil {
		return nil, err
	}

	var resp ThreadList
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ThreadDetail is a full thread with one page of messages. Fetching it marks
// the page's unread messages as read for the caller.
type ThreadDetail struct {
	ID           string      `json:"id"`
	Subject      string      `json:"subject"`
	CreatedBy    UserRef     `json:"created_by"`
	CreatedAt    string      `json:"created_at"`
	UpdatedAt    string      `json:"updated_at"`
	Participants []UserRef   `json:"participants"`
	Messages     MessagePage `json:"messages"`
}

// GetThread fetches a thread with one page of messages.
func (c *Client) GetThread(threadID string, page int) (*ThreadDetail, error) {
	path := "/api/threads/" + threadID
	if page > 1 {
		path += "?page=" + strconv.Itoa(page)
	}

	respBody, err := c.doRequest("GET", path, nil, true)
	if err != nil {
		return nil, err
	}

	var resp ThreadDetail
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateThreadRequest is the request body for creating a thread.
type CreateThreadRequest struct {
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
	Participants []string `json:"participants"`
}

// CreateThread starts a new thread with its first message.
func (c *Client) CreateThread(subject, body string, participantIDs []string) (*ThreadDetail, error) {
	reqBody, _ := json.Marshal(CreateThreadRequest{
		Subject:      subject,
		Body:         body,
		Participants: participantIDs,
	})

	respBody, err := c.doRequest("POST", "/api/threads", reqBody, true)
	if err != nil {
		return nil, err
	}

	var resp ThreadDetail
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostMessage appends a reply to a thread.
func (c *Client) PostMessage(threadID, body string) (*Message, error) {
	reqBody, _ := json.Marshal(map[string]string{"body": body})

	respBody, err := c.doRequest("POST", "/api/threads/"+threadID+"/messages", reqBody, true)
	if err != nil {
		return nil, err
	}

	var resp Message
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the authenticated user.
func (c *Client) Me() (*UserRef, error) {
	respBody, err := c.doRequest("GET", "/api/user", nil, true)
	if err != nil {
		return nil, err
	}

	var resp UserRef
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest("GET", "/health", nil, false)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
