package gateway

import (
	"fmt"

	"github.com/Nikita-812/WebProject/internal/models"
)

// ConflictError is a version-conflict rejection: the submitted clientVersion
// was stale. The server attaches its current version and card state so the
// caller can surface or adopt it.
type ConflictError struct {
	ServerVersion int         `json:"serverVersion"`
	ServerState   models.Card `json:"serverState"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("stale client version, server is at %d", e.ServerVersion)
}
