// Package chat manages the local message list for the active room: optimistic
// sends matched to their acks by correlation id, and deduplication of
// broadcast echoes against messages the ack path already delivered.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Nikita-812/WebProject/internal/errkind"
	"github.com/Nikita-812/WebProject/internal/models"
)

// DefaultAckTimeout bounds how long a send waits for its acknowledgement.
const DefaultAckTimeout = 5000 * time.Millisecond

// Outgoing is a chat send intent. TempID is the correlation id: it doubles as
// the optimistic entry's interim message id until the ack replaces it.
type Outgoing struct {
	TempID    uuid.UUID
	ProjectID uuid.UUID
	Text      string
}

// MessageAck is the server's acceptance of a chat send.
type MessageAck struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

// AckSender delivers a chat send over the realtime channel and blocks until
// the server acks, rejects, or ctx is cancelled.
type AckSender interface {
	SendMessage(ctx context.Context, msg Outgoing) (MessageAck, error)
}

// Reconciler owns the message list of one room session.
type Reconciler struct {
	clock      clockwork.Clock
	sender     AckSender
	ackTimeout time.Duration
	projectID  uuid.UUID
	self       models.User

	mu       sync.Mutex
	messages []models.Message
}

// NewReconciler builds a reconciler for one room. ackTimeout <= 0 selects the
// default 5 s deadline.
func NewReconciler(clock clockwork.Clock, sender AckSender, projectID uuid.UUID, self models.User, ackTimeout time.Duration) *Reconciler {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	return &Reconciler{
		clock:      clock,
		sender:     sender,
		ackTimeout: ackTimeout,
		projectID:  projectID,
		self:       self,
	}
}

// Seed replaces the list with the room's message history.
func (r *Reconciler) Seed(history []models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append([]models.Message(nil), history...)
}

// Messages returns a copy of the list in display order.
func (r *Reconciler) Messages() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Message(nil), r.messages...)
}

// Send appends an optimistic entry, emits the send intent and waits for the
// ack. On success the interim id and timestamp are rewritten in place; on
// timeout, rejection or cancellation the entry is removed and the failure
// returned, leaving the list as it was before the send.
func (r *Reconciler) Send(ctx context.Context, text string) (models.Message, error) {
	tempID := uuid.New()
	displayName := r.self.DisplayName

	optimistic := models.Message{
		ID:              tempID,
		ProjectID:       r.projectID,
		UserID:          r.self.ID,
		Content:         text,
		CreatedAt:       r.clock.Now(),
		UserDisplayName: &displayName,
	}

	r.mu.Lock()
	r.messages = append(r.messages, optimistic)
	r.mu.Unlock()

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		ack MessageAck
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		ack, err := r.sender.SendMessage(sendCtx, Outgoing{
			TempID:    tempID,
			ProjectID: r.projectID,
			Text:      text,
		})
		resultCh <- result{ack: ack, err: err}
	}()

	timer := r.clock.NewTimer(r.ackTimeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			r.rollback(tempID)
			if errkind.KindOf(res.err) != errkind.KindUnknown {
				return models.Message{}, res.err
			}
			return models.Message{}, errkind.New(errkind.KindAckRejected, "chat.send", res.err)
		}
		return r.confirm(tempID, res.ack), nil

	case <-timer.Chan():
		r.rollback(tempID)
		log.Warn().
			Str("temp_id", tempID.String()).
			Dur("deadline", r.ackTimeout).
			Msg("chat send ack deadline exceeded")
		return models.Message{}, errkind.Newf(errkind.KindAckTimeout, "chat.send", "no ack within %s", r.ackTimeout)

	case <-ctx.Done():
		r.rollback(tempID)
		return models.Message{}, errkind.New(errkind.KindTransport, "chat.send", ctx.Err())
	}
}

// confirm rewrites the interim entry's id and timestamp in place, preserving
// list order and the rest of the entry.
func (r *Reconciler) confirm(tempID uuid.UUID, ack MessageAck) models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].ID == tempID {
			r.messages[i].ID = ack.ID
			if !ack.CreatedAt.IsZero() {
				r.messages[i].CreatedAt = ack.CreatedAt
			}
			return r.messages[i]
		}
	}
	// Entry already gone: the session was reset while the send was in flight.
	return models.Message{ID: ack.ID, ProjectID: r.projectID, Content: ""}
}

// rollback removes the optimistic entry entirely.
func (r *Reconciler) rollback(tempID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := r.messages[:0]
	for _, msg := range r.messages {
		if msg.ID != tempID {
			messages = append(messages, msg)
		}
	}
	r.messages = messages
}

// Receive handles a chat.message.created broadcast, which may be another
// participant's message or the echo of one of our own. An id already present
// in the list means the ack path delivered it first; the echo is discarded.
// Reports whether the message was appended.
func (r *Reconciler) Receive(msg models.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.messages {
		if existing.ID == msg.ID {
			return false
		}
	}
	r.messages = append(r.messages, msg)
	return true
}
