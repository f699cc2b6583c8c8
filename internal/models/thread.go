package models

import (
	"time"

	"github.com/google/uuid"
)

// Thread represents a conversation with a subject, an ordered message
// history, and a fixed participant set. UpdatedAt is bumped only when a new
// message is appended.
type Thread struct {
	ID        uuid.UUID `json:"id"`
	Subject   string    `json:"subject"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ThreadSummary is a listing row: the thread plus its derived unread count
// for the viewing user. The count is computed at query time, never stored.
type ThreadSummary struct {
	Thread
	UnreadCount int `json:"unread_count"`
}
