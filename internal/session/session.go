// Package session ties the core together per room: a Room is constructed when
// a project's room is joined, owns that room's board cache, message list and
// typing slot, and is torn down wholesale on switch. State never leaks across
// rooms and it is never reachable as ambient globals.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Nikita-812/WebProject/internal/board"
	"github.com/Nikita-812/WebProject/internal/chat"
	"github.com/Nikita-812/WebProject/internal/errkind"
	"github.com/Nikita-812/WebProject/internal/gateway"
	"github.com/Nikita-812/WebProject/internal/models"
	"github.com/Nikita-812/WebProject/internal/presence"
	"github.com/Nikita-812/WebProject/internal/realtime"
)

// historyLimit caps how much chat history a session loads on join.
const historyLimit = 50

// Room is the session-scoped state of one joined project room.
type Room struct {
	ProjectID uuid.UUID
	BoardID   uuid.UUID
	Board     *board.Store
	Chat      *chat.Reconciler
	Presence  *presence.Tracker
}

// Room implements realtime.RoomSink so channel events mutate exactly this
// session's state and nothing else.

func (r *Room) UpsertCard(card models.Card)       { r.Board.UpsertCard(card) }
func (r *Room) MoveCard(move board.MovePayload)   { r.Board.MoveCard(move) }
func (r *Room) DeleteCard(cardID uuid.UUID)       { r.Board.DeleteCard(cardID) }
func (r *Room) RemoveColumn(columnID uuid.UUID)   { r.Board.RemoveColumn(columnID) }
func (r *Room) ReceiveMessage(msg models.Message) { r.Chat.Receive(msg) }
func (r *Room) ObserveTyping(userID uuid.UUID, displayName *string) {
	r.Presence.Observe(userID, displayName)
}

var _ realtime.RoomSink = (*Room)(nil)

// Manager drives room switching and the authoritative mutation protocol.
// One room is active at a time.
type Manager struct {
	api    *gateway.Client
	bridge *realtime.Bridge
	clock  clockwork.Clock
	self   models.User

	mu     sync.Mutex
	active *Room
}

// NewManager builds a manager for the signed-in user.
func NewManager(api *gateway.Client, bridge *realtime.Bridge, clock clockwork.Clock, self models.User) *Manager {
	return &Manager{api: api, bridge: bridge, clock: clock, self: self}
}

// Active returns the current room session, or nil when idle.
func (m *Manager) Active() *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Switch leaves the current room (if any) and joins projectID: the previous
// room's handlers are detached and its leave intent emitted strictly before
// the join, then a fresh Room is hydrated from the snapshot and chat history.
func (m *Manager) Switch(ctx context.Context, projectID uuid.UUID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if err := m.leaveLocked(ctx); err != nil {
			return nil, err
		}
	}

	room := &Room{
		ProjectID: projectID,
		Board:     board.NewStore(),
		Presence:  presence.NewTracker(m.clock, presence.DefaultTTL),
	}
	room.Chat = chat.NewReconciler(m.clock, m.bridge, projectID, m.self, chat.DefaultAckTimeout)

	snapshot, err := m.api.Board(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("hydrate board: %w", err)
	}
	room.BoardID = snapshot.BoardID
	room.Board.Hydrate(snapshot)

	history, err := m.api.Messages(ctx, projectID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	room.Chat.Seed(history)

	if err := m.bridge.Join(ctx, projectID, room); err != nil {
		return nil, err
	}

	m.active = room
	log.Info().
		Str("project_id", projectID.String()).
		Int("columns", len(snapshot.Columns)).
		Int("cards", len(snapshot.Cards)).
		Msg("room session opened")
	return room, nil
}

// Leave tears the active session down.
func (m *Manager) Leave(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(ctx)
}

func (m *Manager) leaveLocked(ctx context.Context) error {
	if m.active == nil {
		return nil
	}
	if err := m.bridge.Leave(ctx); err != nil {
		return err
	}
	m.active.Presence.Reset()
	m.active.Board.Clear()
	m.active = nil
	return nil
}

// room returns the active session or a precondition failure.
func (m *Manager) room(op string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, errkind.Newf(errkind.KindPrecondition, op, "no active room session")
	}
	return m.active, nil
}

// CreateCard issues the authoritative create and applies the canonical record.
func (m *Manager) CreateCard(ctx context.Context, req gateway.CreateCardRequest) (models.Card, error) {
	room, err := m.room("cards.create")
	if err != nil {
		return models.Card{}, err
	}
	card, err := m.api.CreateCard(ctx, req)
	if err != nil {
		return models.Card{}, err
	}
	room.Board.UpsertCard(card)
	return card, nil
}

// SaveCard patches a card carrying its locally known version. A version
// conflict is surfaced to the caller untouched. A transport failure triggers
// the single documented recovery: re-fetch the canonical card once and apply
// it instead of treating the edit as fully failed.
func (m *Manager) SaveCard(ctx context.Context, cardID uuid.UUID, patch gateway.CardPatch) (models.Card, error) {
	room, err := m.room("cards.save")
	if err != nil {
		return models.Card{}, err
	}
	current, ok := room.Board.Card(cardID)
	if !ok {
		return models.Card{}, errkind.Newf(errkind.KindNotFound, "cards.save", "card %s not in board", cardID)
	}

	updated, err := m.api.UpdateCard(ctx, cardID, patch, current.Version)
	if err != nil {
		if errkind.Is(err, errkind.KindTransport) {
			latest, fetchErr := m.api.Card(ctx, cardID)
			if fetchErr != nil {
				return models.Card{}, err
			}
			room.Board.UpsertCard(latest)
			log.Warn().
				Str("card_id", cardID.String()).
				Msg("card update did not complete, applied re-fetched state")
			return latest, nil
		}
		return models.Card{}, err
	}

	room.Board.UpsertCard(updated)
	return updated, nil
}

// MoveCard issues the authoritative move, gated on the card's known version,
// and applies the canonical result.
func (m *Manager) MoveCard(ctx context.Context, cardID, toColumnID uuid.UUID, position float64) (models.Card, error) {
	room, err := m.room("cards.move")
	if err != nil {
		return models.Card{}, err
	}
	current, ok := room.Board.Card(cardID)
	if !ok {
		return models.Card{}, errkind.Newf(errkind.KindNotFound, "cards.move", "card %s not in board", cardID)
	}

	moved, err := m.api.MoveCard(ctx, gateway.MoveCardRequest{
		ID:            cardID,
		FromColumnID:  current.ColumnID,
		ToColumnID:    toColumnID,
		Position:      position,
		ClientVersion: current.Version,
	})
	if err != nil {
		return models.Card{}, err
	}
	room.Board.UpsertCard(moved)
	return moved, nil
}

// DeleteCard deletes a card authoritatively and drops it from the cache.
func (m *Manager) DeleteCard(ctx context.Context, cardID uuid.UUID) error {
	room, err := m.room("cards.delete")
	if err != nil {
		return err
	}
	if err := m.api.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	room.Board.DeleteCard(cardID)
	return nil
}

// CreateColumn creates a column and adds it to the cache.
func (m *Manager) CreateColumn(ctx context.Context, name string, order *int) (models.Column, error) {
	room, err := m.room("columns.create")
	if err != nil {
		return models.Column{}, err
	}
	column, err := m.api.CreateColumn(ctx, gateway.CreateColumnRequest{
		BoardID: room.BoardID,
		Name:    name,
		Order:   order,
	})
	if err != nil {
		return models.Column{}, err
	}
	room.Board.AddColumn(column)
	return column, nil
}

// UpdateColumn patches a column and replaces it in the cache.
func (m *Manager) UpdateColumn(ctx context.Context, columnID uuid.UUID, req gateway.UpdateColumnRequest) (models.Column, error) {
	room, err := m.room("columns.update")
	if err != nil {
		return models.Column{}, err
	}
	column, err := m.api.UpdateColumn(ctx, columnID, req)
	if err != nil {
		return models.Column{}, err
	}
	room.Board.UpdateColumn(column)
	return column, nil
}

// DeleteColumn deletes a column authoritatively; the cache drops the column
// and its cards in one transition.
func (m *Manager) DeleteColumn(ctx context.Context, columnID uuid.UUID) error {
	room, err := m.room("columns.delete")
	if err != nil {
		return err
	}
	if err := m.api.DeleteColumn(ctx, columnID); err != nil {
		return err
	}
	room.Board.RemoveColumn(columnID)
	return nil
}

// SendChat sends a chat message through the reconciler's optimistic protocol.
func (m *Manager) SendChat(ctx context.Context, text string) (models.Message, error) {
	room, err := m.room("chat.send")
	if err != nil {
		return models.Message{}, err
	}
	return room.Chat.Send(ctx, text)
}

// Typing emits the typing intent for the active room.
func (m *Manager) Typing(ctx context.Context) error {
	if _, err := m.room("chat.typing"); err != nil {
		return err
	}
	return m.bridge.SendTyping(ctx)
}
