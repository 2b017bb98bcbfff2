// Package board holds the in-memory cache of the active room's columns and
// cards. Mutations are total and idempotent; there is no I/O here. Inbound
// realtime payloads are applied as-is, last applied wins — the version field
// only gates outbound mutations, never what the channel delivers.
package board

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Nikita-812/WebProject/internal/models"
)

// MovePayload is the narrow card.moved mutation. It touches column, position
// and (when present) version on the matching card and nothing else.
type MovePayload struct {
	ID         uuid.UUID
	ToColumnID uuid.UUID
	Position   float64
	Version    *int
}

// Store caches exactly one room's board. It is replaced wholesale on room
// switch, never merged across rooms.
type Store struct {
	mu      sync.RWMutex
	columns []models.Column
	cards   []models.Card
}

// NewStore returns an empty board cache.
func NewStore() *Store {
	return &Store{}
}

// Hydrate replaces the entire column/card collection atomically.
func (s *Store) Hydrate(snapshot models.BoardSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.columns = append([]models.Column(nil), snapshot.Columns...)
	s.cards = append([]models.Card(nil), snapshot.Cards...)
}

// UpsertCard replaces the card with a matching id, or appends if absent. The
// incoming record fully replaces the prior one; identity is id equality only.
func (s *Store) UpsertCard(card models.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cards {
		if s.cards[i].ID == card.ID {
			s.cards[i] = card
			return
		}
	}
	s.cards = append(s.cards, card)
}

// MoveCard updates column_id, position and (if supplied) version on the
// matching card, leaving every other field untouched. A miss is a no-op.
func (s *Store) MoveCard(move MovePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cards {
		if s.cards[i].ID != move.ID {
			continue
		}
		s.cards[i].ColumnID = move.ToColumnID
		s.cards[i].Position = move.Position
		if move.Version != nil {
			s.cards[i].Version = *move.Version
		}
		return
	}
}

// AddColumn appends a column, replacing any existing one with the same id so
// a replayed event cannot duplicate it.
func (s *Store) AddColumn(column models.Column) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.columns {
		if s.columns[i].ID == column.ID {
			s.columns[i] = column
			return
		}
	}
	s.columns = append(s.columns, column)
}

// UpdateColumn replaces the column with a matching id. A miss is a no-op.
func (s *Store) UpdateColumn(column models.Column) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.columns {
		if s.columns[i].ID == column.ID {
			s.columns[i] = column
			return
		}
	}
}

// RemoveColumn removes the column and, in the same state transition, every
// card whose column_id references it.
func (s *Store) RemoveColumn(columnID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	columns := s.columns[:0]
	for _, column := range s.columns {
		if column.ID != columnID {
			columns = append(columns, column)
		}
	}
	s.columns = columns

	cards := s.cards[:0]
	for _, card := range s.cards {
		if card.ColumnID != columnID {
			cards = append(cards, card)
		}
	}
	s.cards = cards
}

// DeleteCard removes the card with the given id. A miss is a no-op.
func (s *Store) DeleteCard(cardID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cards := s.cards[:0]
	for _, card := range s.cards {
		if card.ID != cardID {
			cards = append(cards, card)
		}
	}
	s.cards = cards
}

// Clear empties both collections.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.columns = nil
	s.cards = nil
}

// Columns returns a copy of the column list in stored order.
func (s *Store) Columns() []models.Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Column(nil), s.columns...)
}

// Cards returns a copy of the card list in stored order.
func (s *Store) Cards() []models.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Card(nil), s.cards...)
}

// Card returns the card with the given id, if present.
func (s *Store) Card(cardID uuid.UUID) (models.Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, card := range s.cards {
		if card.ID == cardID {
			return card, true
		}
	}
	return models.Card{}, false
}
