package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a chat message in a project room. An optimistically sent
// message carries a locally generated id until the server ack assigns the
// authoritative one.
type Message struct {
	ID              uuid.UUID `json:"id"`
	ProjectID       uuid.UUID `json:"project_id"`
	UserID          uuid.UUID `json:"user_id"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	UserDisplayName *string   `json:"user_display_name,omitempty"`
}

// TypingIndicator is the ephemeral "someone is typing" slot. At most one is
// live at a time; a newer typist replaces it.
type TypingIndicator struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName *string   `json:"display_name,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}
