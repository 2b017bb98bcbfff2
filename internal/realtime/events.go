package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Nikita-812/WebProject/internal/models"
)

// EventType names the events the room channel carries. The set is closed:
// anything else fails to decode at the boundary.
type EventType string

const (
	// Inbound broadcasts.
	EventCardCreated        EventType = "card.created"
	EventCardUpdated        EventType = "card.updated"
	EventCardMoved          EventType = "card.moved"
	EventCardDeleted        EventType = "card.deleted"
	EventColumnDeleted      EventType = "column.deleted"
	EventChatMessageCreated EventType = "chat.message.created"
	EventChatTyping         EventType = "chat.typing"

	// Outbound intents.
	EventJoinRoom    EventType = "join_room"
	EventLeaveRoom   EventType = "leave_room"
	EventChatMessage EventType = "chat.message"

	// EventAck correlates a reply to a request by envelope id.
	EventAck EventType = "ack"
)

// Envelope is the wire frame in both directions. Room is stamped by the
// server on broadcasts so a client can drop frames for rooms it has left.
type Envelope struct {
	ID      uuid.UUID       `json:"id"`
	Room    string          `json:"room,omitempty"`
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an outbound envelope with a fresh event id.
func NewEnvelope(eventType EventType, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{ID: uuid.New(), Type: eventType, Payload: data}, nil
}

// AckEnvelope builds the reply frame for a request id.
func AckEnvelope(requestID uuid.UUID, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal ack payload: %w", err)
	}
	return Envelope{ID: requestID, Type: EventAck, Payload: data}, nil
}

// CardMovedPayload is the card.moved broadcast. Only column, position and
// version travel; every other card field stays as the receiver has it.
type CardMovedPayload struct {
	ID           uuid.UUID  `json:"id"`
	FromColumnID *uuid.UUID `json:"fromColumnId,omitempty"`
	ToColumnID   uuid.UUID  `json:"toColumnId"`
	Position     float64    `json:"position"`
	Version      *int       `json:"version,omitempty"`
}

// CardDeletedPayload is the card.deleted broadcast.
type CardDeletedPayload struct {
	ID uuid.UUID `json:"id"`
}

// ColumnDeletedPayload is the column.deleted broadcast.
type ColumnDeletedPayload struct {
	ID uuid.UUID `json:"id"`
}

// ChatMessageCreatedPayload is the chat.message.created broadcast. The wire
// names differ from the domain entity; Message performs the rename.
type ChatMessageCreatedPayload struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   uuid.UUID `json:"projectId"`
	UserID      uuid.UUID `json:"userId"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
	DisplayName *string   `json:"displayName,omitempty"`
}

// Message maps the wire payload onto the domain entity.
func (p ChatMessageCreatedPayload) Message() models.Message {
	return models.Message{
		ID:              p.ID,
		ProjectID:       p.ProjectID,
		UserID:          p.UserID,
		Content:         p.Text,
		CreatedAt:       p.CreatedAt,
		UserDisplayName: p.DisplayName,
	}
}

// ChatTypingPayload is both the typing broadcast and the outbound intent.
type ChatTypingPayload struct {
	ProjectID   uuid.UUID `json:"projectId"`
	UserID      uuid.UUID `json:"userId"`
	DisplayName *string   `json:"displayName,omitempty"`
}

// RoomPayload is the join_room / leave_room intent body.
type RoomPayload struct {
	ProjectID uuid.UUID `json:"projectId"`
}

// ChatSendPayload is the outbound chat.message request body.
type ChatSendPayload struct {
	TempID    uuid.UUID `json:"tempId"`
	ProjectID uuid.UUID `json:"projectId"`
	Text      string    `json:"text"`
}

// ChatAckPayload is the success ack body for a chat.message request.
type ChatAckPayload struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// AckErrorPayload is the explicit-rejection ack body.
type AckErrorPayload struct {
	Error string `json:"error,omitempty"`
}

// DecodeEvent parses an inbound envelope into its typed payload. The matching
// is exhaustive over the inbound event set; an unknown type is an error, never
// a silent coercion.
func DecodeEvent(env Envelope) (any, error) {
	switch env.Type {
	case EventCardCreated, EventCardUpdated:
		var card models.Card
		if err := json.Unmarshal(env.Payload, &card); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return card, nil

	case EventCardMoved:
		var payload CardMovedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return payload, nil

	case EventCardDeleted:
		var payload CardDeletedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return payload, nil

	case EventColumnDeleted:
		var payload ColumnDeletedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return payload, nil

	case EventChatMessageCreated:
		var payload ChatMessageCreatedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return payload, nil

	case EventChatTyping:
		var payload ChatTypingPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", env.Type)
	}
}
