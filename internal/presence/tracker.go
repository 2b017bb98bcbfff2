// Package presence tracks the single "someone is typing" slot for the active
// room. Concurrent typists collapse to last-typer-wins: one slot, and a newer
// event for any user replaces the current indicator and restarts its expiry.
package presence

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Nikita-812/WebProject/internal/models"
)

// DefaultTTL is how long an indicator survives without a fresh typing event.
const DefaultTTL = 1500 * time.Millisecond

// Tracker holds at most one live TypingIndicator.
// In production pass clockwork.NewRealClock(); tests use a FakeClock.
type Tracker struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu     sync.Mutex
	active *models.TypingIndicator
	timer  clockwork.Timer
	gen    uint64
}

// NewTracker returns a tracker with the given indicator lifetime.
func NewTracker(clock clockwork.Clock, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{clock: clock, ttl: ttl}
}

// Observe records a typing event. Any existing indicator is replaced, even one
// for a different user, and the countdown restarts from now.
func (t *Tracker) Observe(userID uuid.UUID, displayName *string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active = &models.TypingIndicator{
		UserID:      userID,
		DisplayName: displayName,
		ExpiresAt:   t.clock.Now().Add(t.ttl),
	}

	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clock.AfterFunc(t.ttl, func() {
		t.expire(gen)
	})
}

// expire clears the indicator unless a newer Observe superseded this timer.
func (t *Tracker) expire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		return
	}
	t.active = nil
	t.timer = nil
}

// Active returns the live indicator, or nil if nobody is typing.
func (t *Tracker) Active() *models.TypingIndicator {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return nil
	}
	indicator := *t.active
	return &indicator
}

// Reset drops the indicator and cancels its countdown. Called on room switch.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.active = nil
}
