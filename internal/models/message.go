package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a single message in a thread.
//
// IDs are ULIDs: lexicographic order matches creation order, which gives the
// deterministic tie-break for messages sharing a created_at timestamp.
// IsRead starts false and flips to true exactly once, when a participant
// other than the author views the thread.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  uuid.UUID `json:"thread_id"`
	UserID    uuid.UUID `json:"user_id"`
	Body      string    `json:"body"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Author display fields, populated by joined queries.
	UserName  string `json:"-"`
	UserEmail string `json:"-"`
}
