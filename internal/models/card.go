package models

import (
	"time"

	"github.com/google/uuid"
)

// CardPriority defines the priority of a card.
type CardPriority string

const (
	CardPriorityLow    CardPriority = "low"
	CardPriorityMedium CardPriority = "medium"
	CardPriorityHigh   CardPriority = "high"
)

// Card represents a kanban card as the server stores it. Version is owned by
// the server and advances on every accepted mutation; the client only echoes
// it back as clientVersion.
type Card struct {
	ID          uuid.UUID     `json:"id"`
	ProjectID   uuid.UUID     `json:"project_id"`
	ColumnID    uuid.UUID     `json:"column_id"`
	Title       string        `json:"title"`
	Description *string       `json:"description,omitempty"`
	Labels      []string      `json:"labels"`
	Assignees   []string      `json:"assignees"`
	Priority    *CardPriority `json:"priority,omitempty"`
	DueDate     *string       `json:"due_date,omitempty"` // ISO date, yyyy-mm-dd
	Position    float64       `json:"position"`
	Version     int           `json:"version"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Column represents a board column. Deleting a column cascades to its cards.
type Column struct {
	ID      uuid.UUID `json:"id"`
	BoardID uuid.UUID `json:"board_id"`
	Name    string    `json:"name"`
	Order   int       `json:"order"`
}

// BoardSnapshot is the full board payload used to hydrate a session.
type BoardSnapshot struct {
	BoardID uuid.UUID `json:"board_id"`
	Columns []Column  `json:"columns"`
	Cards   []Card    `json:"cards"`
}
