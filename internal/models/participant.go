package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a thread membership row. LastReadAt is null until the user
// first views the thread, except the creator whose link is stamped at
// creation time.
type Participant struct {
	ThreadID   uuid.UUID  `json:"-"`
	UserID     uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email,omitempty"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}
