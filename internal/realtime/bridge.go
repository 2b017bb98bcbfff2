// Package realtime owns the room channel: the wire protocol, the websocket
// client, and the bridge that translates channel events into domain mutations
// for exactly one joined room at a time.
package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Nikita-812/WebProject/internal/board"
	"github.com/Nikita-812/WebProject/internal/chat"
	"github.com/Nikita-812/WebProject/internal/errkind"
	"github.com/Nikita-812/WebProject/internal/models"
)

// Conn is what the bridge needs from the channel transport.
type Conn interface {
	Emit(ctx context.Context, env Envelope) error
	Request(ctx context.Context, env Envelope) (json.RawMessage, error)
	SetHandler(handler func(Envelope))
}

// RoomSink receives the domain mutations decoded from channel events. The
// session object for the joined room implements it.
type RoomSink interface {
	UpsertCard(card models.Card)
	MoveCard(move board.MovePayload)
	DeleteCard(cardID uuid.UUID)
	RemoveColumn(columnID uuid.UUID)
	ReceiveMessage(msg models.Message)
	ObserveTyping(userID uuid.UUID, displayName *string)
}

// Bridge subscribes to one room at a time: Idle -> Joined(room) -> Idle.
// Joining attaches the event handler and emits the join intent; leaving emits
// the leave intent for the previous room and detaches the handler before any
// new room is joined, so no stale event can mutate a session after switch.
type Bridge struct {
	conn Conn
	self models.User

	// room is the joined project, uuid.Nil when idle. Guarded by the join
	// and leave callers being the single control goroutine.
	room uuid.UUID
}

// NewBridge builds a bridge for the local user over an established channel.
func NewBridge(conn Conn, self models.User) *Bridge {
	return &Bridge{conn: conn, self: self}
}

// Room returns the joined project id, or uuid.Nil when idle.
func (b *Bridge) Room() uuid.UUID {
	return b.room
}

// Join subscribes to projectID, first leaving any previously joined room.
func (b *Bridge) Join(ctx context.Context, projectID uuid.UUID, sink RoomSink) error {
	if b.room != uuid.Nil {
		if err := b.Leave(ctx); err != nil {
			return err
		}
	}

	b.conn.SetHandler(func(env Envelope) {
		b.handleEvent(projectID, sink, env)
	})

	env, err := NewEnvelope(EventJoinRoom, RoomPayload{ProjectID: projectID})
	if err != nil {
		b.conn.SetHandler(nil)
		return err
	}
	if err := b.conn.Emit(ctx, env); err != nil {
		b.conn.SetHandler(nil)
		return err
	}

	b.room = projectID
	log.Info().Str("project_id", projectID.String()).Msg("joined room")
	return nil
}

// Leave detaches the event handler and emits the leave intent for the current
// room. Detach happens first: once Leave returns, nothing from the old room
// can reach the sink.
func (b *Bridge) Leave(ctx context.Context) error {
	if b.room == uuid.Nil {
		return nil
	}
	previous := b.room
	b.conn.SetHandler(nil)
	b.room = uuid.Nil

	env, err := NewEnvelope(EventLeaveRoom, RoomPayload{ProjectID: previous})
	if err != nil {
		return err
	}
	if err := b.conn.Emit(ctx, env); err != nil {
		return err
	}
	log.Info().Str("project_id", previous.String()).Msg("left room")
	return nil
}

// SendTyping emits the typing intent for the joined room.
func (b *Bridge) SendTyping(ctx context.Context) error {
	if b.room == uuid.Nil {
		return errkind.Newf(errkind.KindPrecondition, "realtime.typing", "no joined room")
	}
	env, err := NewEnvelope(EventChatTyping, ChatTypingPayload{ProjectID: b.room, UserID: b.self.ID})
	if err != nil {
		return err
	}
	return b.conn.Emit(ctx, env)
}

// SendMessage implements chat.AckSender: it carries a chat send over the
// channel as a request and decodes the {id, createdAt} ack.
func (b *Bridge) SendMessage(ctx context.Context, msg chat.Outgoing) (chat.MessageAck, error) {
	env, err := NewEnvelope(EventChatMessage, ChatSendPayload{
		TempID:    msg.TempID,
		ProjectID: msg.ProjectID,
		Text:      msg.Text,
	})
	if err != nil {
		return chat.MessageAck{}, err
	}

	raw, err := b.conn.Request(ctx, env)
	if err != nil {
		return chat.MessageAck{}, err
	}

	var ack ChatAckPayload
	if err := json.Unmarshal(raw, &ack); err != nil {
		return chat.MessageAck{}, errkind.New(errkind.KindAckRejected, "chat.send", err)
	}
	if ack.ID == uuid.Nil {
		return chat.MessageAck{}, errkind.Newf(errkind.KindAckRejected, "chat.send", "ack missing message id")
	}
	return chat.MessageAck{ID: ack.ID, CreatedAt: ack.CreatedAt}, nil
}

// handleEvent decodes one inbound envelope and applies it to the sink. Frames
// stamped for another room and unknown event kinds are dropped with a log
// line. Card events are applied as delivered, without version comparison.
func (b *Bridge) handleEvent(projectID uuid.UUID, sink RoomSink, env Envelope) {
	if env.Room != "" && env.Room != projectID.String() {
		log.Debug().
			Str("event_type", string(env.Type)).
			Str("room", env.Room).
			Str("project_id", projectID.String()).
			Msg("dropping event for another room")
		return
	}

	decoded, err := DecodeEvent(env)
	if err != nil {
		log.Warn().Err(err).Str("event_type", string(env.Type)).Msg("rejecting channel event")
		return
	}

	switch payload := decoded.(type) {
	case models.Card:
		sink.UpsertCard(payload)
	case CardMovedPayload:
		sink.MoveCard(board.MovePayload{
			ID:         payload.ID,
			ToColumnID: payload.ToColumnID,
			Position:   payload.Position,
			Version:    payload.Version,
		})
	case CardDeletedPayload:
		sink.DeleteCard(payload.ID)
	case ColumnDeletedPayload:
		sink.RemoveColumn(payload.ID)
	case ChatMessageCreatedPayload:
		sink.ReceiveMessage(payload.Message())
	case ChatTypingPayload:
		if payload.UserID == b.self.ID {
			return
		}
		sink.ObserveTyping(payload.UserID, payload.DisplayName)
	}
}

var _ chat.AckSender = (*Bridge)(nil)
