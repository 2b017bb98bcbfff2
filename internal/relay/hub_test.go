package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Nikita-812/WebProject/internal/errkind"
	"github.com/Nikita-812/WebProject/internal/models"
	"github.com/Nikita-812/WebProject/internal/realtime"
)

type testClient struct {
	sock   *realtime.Socket
	events chan realtime.Envelope
	userID uuid.UUID
}

func dialClient(t *testing.T, serverURL, displayName string) *testClient {
	t.Helper()
	userID := uuid.New()
	wsURL := fmt.Sprintf("%s/ws?user_id=%s&display_name=%s",
		"ws"+strings.TrimPrefix(serverURL, "http"), userID, displayName)

	sock, err := realtime.Dial(context.Background(), realtime.DefaultSocketConfig(wsURL, "test-token"))
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })

	c := &testClient{sock: sock, events: make(chan realtime.Envelope, 16), userID: userID}
	sock.SetHandler(func(env realtime.Envelope) { c.events <- env })
	return c
}

func (c *testClient) join(t *testing.T, projectID uuid.UUID) {
	t.Helper()
	env, err := realtime.NewEnvelope(realtime.EventJoinRoom, realtime.RoomPayload{ProjectID: projectID})
	require.NoError(t, err)
	require.NoError(t, c.sock.Emit(context.Background(), env))
}

func (c *testClient) expect(t *testing.T, eventType realtime.EventType) realtime.Envelope {
	t.Helper()
	select {
	case env := <-c.events:
		require.Equal(t, eventType, env.Type)
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", eventType)
		return realtime.Envelope{}
	}
}

func (c *testClient) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case env := <-c.events:
		t.Fatalf("unexpected event %s", env.Type)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDialWithoutTokenIsPreconditionFailure(t *testing.T) {
	_, err := realtime.Dial(context.Background(), realtime.DefaultSocketConfig("ws://localhost:0/ws", ""))
	require.Error(t, err)
	require.Equal(t, errkind.KindPrecondition, errkind.KindOf(err))
}

func TestBoardEventsFanOutWithinRoom(t *testing.T) {
	server := httptest.NewServer(NewHub())
	defer server.Close()

	roomA := uuid.New()
	roomB := uuid.New()

	sender := dialClient(t, server.URL, "Alice")
	sameRoom := dialClient(t, server.URL, "Bob")
	otherRoom := dialClient(t, server.URL, "Eve")

	sender.join(t, roomA)
	sameRoom.join(t, roomA)
	otherRoom.join(t, roomB)
	time.Sleep(100 * time.Millisecond) // joins are fire-and-forget

	card := models.Card{ID: uuid.New(), ProjectID: roomA, ColumnID: uuid.New(), Title: "shared"}
	env, err := realtime.NewEnvelope(realtime.EventCardCreated, card)
	require.NoError(t, err)
	require.NoError(t, sender.sock.Emit(context.Background(), env))

	got := sameRoom.expect(t, realtime.EventCardCreated)
	require.Equal(t, roomA.String(), got.Room)
	var received models.Card
	require.NoError(t, json.Unmarshal(got.Payload, &received))
	require.Equal(t, card.ID, received.ID)

	// Not echoed back to the sender, not leaked to another room.
	sender.expectNothing(t)
	otherRoom.expectNothing(t)
}

func TestChatMessageAckAndBroadcast(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	room := uuid.New()
	sender := dialClient(t, server.URL, "Alice")
	receiver := dialClient(t, server.URL, "Bob")
	sender.join(t, room)
	receiver.join(t, room)
	time.Sleep(100 * time.Millisecond)

	req, err := realtime.NewEnvelope(realtime.EventChatMessage, realtime.ChatSendPayload{
		TempID:    uuid.New(),
		ProjectID: room,
		Text:      "hello",
	})
	require.NoError(t, err)

	raw, err := sender.sock.Request(context.Background(), req)
	require.NoError(t, err)

	var ack realtime.ChatAckPayload
	require.NoError(t, json.Unmarshal(raw, &ack))
	require.NotEqual(t, uuid.Nil, ack.ID)
	require.False(t, ack.CreatedAt.IsZero())

	got := receiver.expect(t, realtime.EventChatMessageCreated)
	var broadcast realtime.ChatMessageCreatedPayload
	require.NoError(t, json.Unmarshal(got.Payload, &broadcast))
	require.Equal(t, ack.ID, broadcast.ID)
	require.Equal(t, "hello", broadcast.Text)
	require.Equal(t, sender.userID, broadcast.UserID)
	require.NotNil(t, broadcast.DisplayName)
	require.Equal(t, "Alice", *broadcast.DisplayName)

	history := hub.Messages(room)
	require.Len(t, history, 1)
	require.Equal(t, ack.ID, history[0].ID)
}

func TestEmptyChatMessageIsRejected(t *testing.T) {
	server := httptest.NewServer(NewHub())
	defer server.Close()

	room := uuid.New()
	sender := dialClient(t, server.URL, "Alice")
	sender.join(t, room)
	time.Sleep(100 * time.Millisecond)

	req, err := realtime.NewEnvelope(realtime.EventChatMessage, realtime.ChatSendPayload{
		TempID:    uuid.New(),
		ProjectID: room,
		Text:      "   ",
	})
	require.NoError(t, err)

	_, err = sender.sock.Request(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, errkind.KindAckRejected, errkind.KindOf(err))
}

func TestTypingFanOutCarriesDisplayName(t *testing.T) {
	server := httptest.NewServer(NewHub())
	defer server.Close()

	room := uuid.New()
	typist := dialClient(t, server.URL, "Alice")
	watcher := dialClient(t, server.URL, "Bob")
	typist.join(t, room)
	watcher.join(t, room)
	time.Sleep(100 * time.Millisecond)

	env, err := realtime.NewEnvelope(realtime.EventChatTyping, realtime.ChatTypingPayload{
		ProjectID: room,
		UserID:    typist.userID,
	})
	require.NoError(t, err)
	require.NoError(t, typist.sock.Emit(context.Background(), env))

	got := watcher.expect(t, realtime.EventChatTyping)
	var typing realtime.ChatTypingPayload
	require.NoError(t, json.Unmarshal(got.Payload, &typing))
	require.Equal(t, typist.userID, typing.UserID)
	require.NotNil(t, typing.DisplayName)
	require.Equal(t, "Alice", *typing.DisplayName)
}

func TestBroadcastDuringDisconnectDoesNotPanic(t *testing.T) {
	hub := NewHub()
	room := uuid.New().String()

	const members = 500
	clients := make([]*client, members)
	for i := range clients {
		c := &client{
			hub:    hub,
			send:   make(chan realtime.Envelope, 1),
			done:   make(chan struct{}),
			userID: uuid.New(),
			rooms:  make(map[string]bool),
		}
		hub.join(c, room)
		clients[i] = c
	}

	env, err := realtime.NewEnvelope(realtime.EventCardDeleted, realtime.CardDeletedPayload{ID: uuid.New()})
	require.NoError(t, err)

	// Every disconnect races one broadcast holding a membership snapshot.
	var wg sync.WaitGroup
	wg.Add(members + 1)
	go func() {
		defer wg.Done()
		hub.broadcast(room, env, nil)
	}()
	for _, c := range clients {
		go func(c *client) {
			defer wg.Done()
			hub.drop(c)
		}(c)
	}
	wg.Wait()

	for _, c := range clients {
		select {
		case <-c.done:
		default:
			t.Fatal("dropped client's write pump was not signalled to stop")
		}
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	require.Empty(t, hub.rooms[room])
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	server := httptest.NewServer(NewHub())
	defer server.Close()

	room := uuid.New()
	sender := dialClient(t, server.URL, "Alice")
	leaver := dialClient(t, server.URL, "Bob")
	sender.join(t, room)
	leaver.join(t, room)
	time.Sleep(100 * time.Millisecond)

	leave, err := realtime.NewEnvelope(realtime.EventLeaveRoom, realtime.RoomPayload{ProjectID: room})
	require.NoError(t, err)
	require.NoError(t, leaver.sock.Emit(context.Background(), leave))
	time.Sleep(100 * time.Millisecond)

	env, err := realtime.NewEnvelope(realtime.EventCardDeleted, realtime.CardDeletedPayload{ID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, sender.sock.Emit(context.Background(), env))

	leaver.expectNothing(t)
}
