package presence

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestIndicatorExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewTracker(clock, DefaultTTL)

	u1 := uuid.New()
	name := "Alice"
	tracker.Observe(u1, &name)

	active := tracker.Active()
	require.NotNil(t, active)
	require.Equal(t, u1, active.UserID)
	require.Equal(t, &name, active.DisplayName)
	require.Equal(t, clock.Now().Add(DefaultTTL), active.ExpiresAt)

	clock.Advance(1499 * time.Millisecond)
	require.NotNil(t, tracker.Active())

	clock.Advance(1 * time.Millisecond)
	require.Nil(t, tracker.Active())
}

func TestNewTypistReplacesAndRestartsWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewTracker(clock, DefaultTTL)

	u1 := uuid.New()
	u2 := uuid.New()

	tracker.Observe(u1, nil)
	clock.Advance(1000 * time.Millisecond)

	tracker.Observe(u2, nil)
	active := tracker.Active()
	require.NotNil(t, active)
	require.Equal(t, u2, active.UserID)

	// 1400 ms after u2: the old window (which would have ended 500 ms ago)
	// must not clear the replacement.
	clock.Advance(1400 * time.Millisecond)
	active = tracker.Active()
	require.NotNil(t, active)
	require.Equal(t, u2, active.UserID)

	clock.Advance(100 * time.Millisecond)
	require.Nil(t, tracker.Active())
}

func TestRepeatTypingExtendsWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewTracker(clock, DefaultTTL)

	u1 := uuid.New()
	tracker.Observe(u1, nil)
	clock.Advance(1200 * time.Millisecond)
	tracker.Observe(u1, nil)
	clock.Advance(1200 * time.Millisecond)
	require.NotNil(t, tracker.Active())
	clock.Advance(300 * time.Millisecond)
	require.Nil(t, tracker.Active())
}

func TestReset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewTracker(clock, DefaultTTL)

	tracker.Observe(uuid.New(), nil)
	tracker.Reset()
	require.Nil(t, tracker.Active())

	// The cancelled countdown must not clear a later indicator.
	u2 := uuid.New()
	tracker.Observe(u2, nil)
	clock.Advance(1400 * time.Millisecond)
	require.NotNil(t, tracker.Active())
}
