package inbox

import (
	"github.com/google/uuid"

	"github.com/threadbox/threadbox/internal/models"
)

// Access-control predicates. Pure functions over already-loaded state,
// evaluated at the top of every operation before any side effect.

func isMember(userID uuid.UUID, participants []models.Participant) bool {
	for _, p := range participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// CanView reports whether the user may read the thread: participants only.
func CanView(userID uuid.UUID, participants []models.Participant) bool {
	return isMember(userID, participants)
}

// CanPost reports whether the user may add messages: participants only.
func CanPost(userID uuid.UUID, participants []models.Participant) bool {
	return isMember(userID, participants)
}

// CanUpdate reports whether the user may modify the thread: creator only.
func CanUpdate(userID uuid.UUID, thread *models.Thread) bool {
	return thread != nil && thread.CreatedBy == userID
}

// CanDelete reports whether the user may delete the thread: creator only.
func CanDelete(userID uuid.UUID, thread *models.Thread) bool {
	return thread != nil && thread.CreatedBy == userID
}
