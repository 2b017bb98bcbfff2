// Package relay is an in-memory room relay for development and tests: it
// accepts the same websocket protocol the client speaks, fans events out to
// everyone else in the room, assigns ids to chat messages and acks them.
// It is a fixture, not the production backend: token presence is the only
// auth and nothing survives a restart.
package relay

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Nikita-812/WebProject/internal/realtime"
)

const (
	writeTimeout   = 10 * time.Second
	readTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Hub tracks connected clients and the rooms they joined.
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	rooms    map[string]map[*client]bool
	messages map[string][]realtime.ChatMessageCreatedPayload
}

type client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan realtime.Envelope
	done        chan struct{}
	userID      uuid.UUID
	displayName string

	mu    sync.Mutex
	rooms map[string]bool

	closeOnce sync.Once
}

// NewHub returns an empty relay hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms:    make(map[string]map[*client]bool),
		messages: make(map[string][]realtime.ChatMessageCreatedPayload),
	}
}

// ServeHTTP upgrades the connection. A bearer token must be present; the
// relay does not validate it beyond that. User identity comes from the
// user_id and display_name query parameters.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if bearerToken(r) == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		userID = uuid.New()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade relay connection")
		return
	}

	c := &client{
		hub:         h,
		conn:        conn,
		send:        make(chan realtime.Envelope, sendBuffer),
		done:        make(chan struct{}),
		userID:      userID,
		displayName: r.URL.Query().Get("display_name"),
		rooms:       make(map[string]bool),
	}

	go c.writePump()
	go c.readPump()

	log.Info().Str("user_id", userID.String()).Msg("relay connection established")
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// Messages returns the chat history the relay accepted for a room.
func (h *Hub) Messages(projectID uuid.UUID) []realtime.ChatMessageCreatedPayload {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]realtime.ChatMessageCreatedPayload(nil), h.messages[projectID.String()]...)
}

func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]bool)
	}
	h.rooms[room][c] = true

	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()

	log.Debug().
		Str("room", room).
		Int("members", len(h.rooms[room])).
		Msg("client joined room")
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

func (h *Hub) drop(c *client) {
	c.mu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	h.mu.Lock()
	for _, room := range rooms {
		h.leaveLocked(c, room)
	}
	h.mu.Unlock()

	// The send channel stays open: broadcast may still hold a membership
	// snapshot that includes this client, and sending on a closed channel
	// panics the whole relay. The done channel stops the write pump instead;
	// anything still queued is dropped with the connection.
	c.closeOnce.Do(func() { close(c.done) })
}

// broadcast stamps the room on the envelope and fans it out to every room
// member except the sender.
func (h *Hub) broadcast(room string, env realtime.Envelope, skip *client) {
	env.Room = room

	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[room]))
	for member := range h.rooms[room] {
		if member != skip {
			members = append(members, member)
		}
	}
	h.mu.RUnlock()

	for _, member := range members {
		select {
		case member.send <- env:
		default:
			log.Warn().Str("room", room).Msg("relay client send buffer full, dropping frame")
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		var env realtime.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Msg("unexpected relay client close")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		c.handle(env)
	}
}

func (c *client) handle(env realtime.Envelope) {
	switch env.Type {
	case realtime.EventJoinRoom:
		var payload realtime.RoomPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.Warn().Err(err).Msg("bad join_room payload")
			return
		}
		c.hub.join(c, payload.ProjectID.String())

	case realtime.EventLeaveRoom:
		var payload realtime.RoomPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.Warn().Err(err).Msg("bad leave_room payload")
			return
		}
		c.hub.leave(c, payload.ProjectID.String())

	case realtime.EventChatMessage:
		c.handleChatMessage(env)

	case realtime.EventChatTyping:
		var payload realtime.ChatTypingPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.Warn().Err(err).Msg("bad chat.typing payload")
			return
		}
		if payload.DisplayName == nil && c.displayName != "" {
			name := c.displayName
			payload.DisplayName = &name
		}
		out, err := realtime.NewEnvelope(realtime.EventChatTyping, payload)
		if err != nil {
			return
		}
		c.hub.broadcast(payload.ProjectID.String(), out, c)

	case realtime.EventCardCreated, realtime.EventCardUpdated, realtime.EventCardMoved,
		realtime.EventCardDeleted, realtime.EventColumnDeleted:
		// Board events pass through to the rest of the sender's room. The dev
		// relay trusts the payload; the real backend originates these itself.
		c.mu.Lock()
		rooms := make([]string, 0, len(c.rooms))
		for room := range c.rooms {
			rooms = append(rooms, room)
		}
		c.mu.Unlock()
		for _, room := range rooms {
			c.hub.broadcast(room, env, c)
		}

	default:
		log.Warn().Str("event_type", string(env.Type)).Msg("relay dropping unknown event")
	}
}

func (c *client) handleChatMessage(env realtime.Envelope) {
	var payload realtime.ChatSendPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.reject(env.ID, "bad chat.message payload")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		c.reject(env.ID, "empty message")
		return
	}

	var displayName *string
	if c.displayName != "" {
		name := c.displayName
		displayName = &name
	}
	created := realtime.ChatMessageCreatedPayload{
		ID:          uuid.New(),
		ProjectID:   payload.ProjectID,
		UserID:      c.userID,
		Text:        payload.Text,
		CreatedAt:   time.Now().UTC(),
		DisplayName: displayName,
	}

	room := payload.ProjectID.String()
	c.hub.mu.Lock()
	c.hub.messages[room] = append(c.hub.messages[room], created)
	c.hub.mu.Unlock()

	broadcastEnv, err := realtime.NewEnvelope(realtime.EventChatMessageCreated, created)
	if err != nil {
		c.reject(env.ID, "encode broadcast")
		return
	}
	c.hub.broadcast(room, broadcastEnv, c)

	ack, err := realtime.AckEnvelope(env.ID, realtime.ChatAckPayload{ID: created.ID, CreatedAt: created.CreatedAt})
	if err != nil {
		return
	}
	c.deliver(ack)
}

func (c *client) reject(requestID uuid.UUID, reason string) {
	ack, err := realtime.AckEnvelope(requestID, realtime.AckErrorPayload{Error: reason})
	if err != nil {
		return
	}
	c.deliver(ack)
}

func (c *client) deliver(env realtime.Envelope) {
	select {
	case c.send <- env:
	default:
		log.Warn().Msg("relay client send buffer full, dropping ack")
	}
}
