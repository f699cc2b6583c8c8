package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account. Password hashes never leave the
// store/auth boundary and are excluded from JSON.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
