package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Nikita-812/WebProject/internal/errkind"
)

// SocketConfig holds connection settings for the realtime channel.
type SocketConfig struct {
	URL              string // ws:// or wss:// endpoint
	Token            string // bearer credential; required
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	SendBuffer       int
}

// DefaultSocketConfig returns the default channel settings.
func DefaultSocketConfig(url, token string) SocketConfig {
	return SocketConfig{
		URL:              url,
		Token:            token,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   64 * 1024,
		SendBuffer:       256,
	}
}

// Socket is one client connection to the realtime channel. It owns the read
// and write pumps, matches ack envelopes back to their requests by id, and
// delivers everything else to a single swappable handler.
type Socket struct {
	conn   *websocket.Conn
	config SocketConfig
	send   chan Envelope
	done   chan struct{}

	mu      sync.Mutex
	pending map[uuid.UUID]chan Envelope
	handler func(Envelope)

	closeOnce sync.Once
}

// Dial opens the realtime channel. Connecting without a credential is a usage
// error, reported as a precondition failure and never retried.
func Dial(ctx context.Context, config SocketConfig) (*Socket, error) {
	if config.Token == "" {
		return nil, errkind.Newf(errkind.KindPrecondition, "realtime.dial", "missing auth token for socket connection")
	}

	dialer := websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+config.Token)

	conn, resp, err := dialer.DialContext(ctx, config.URL, header)
	if err != nil {
		if resp != nil {
			return nil, errkind.Newf(errkind.KindTransport, "realtime.dial", "dial %s: %v (status %d)", config.URL, err, resp.StatusCode)
		}
		return nil, errkind.New(errkind.KindTransport, "realtime.dial", err)
	}

	s := &Socket{
		conn:    conn,
		config:  config,
		send:    make(chan Envelope, config.SendBuffer),
		done:    make(chan struct{}),
		pending: make(map[uuid.UUID]chan Envelope),
	}

	go s.writePump()
	go s.readPump()

	log.Info().Str("url", config.URL).Msg("realtime channel established")
	return s, nil
}

// SetHandler installs the handler for non-ack envelopes. Passing nil detaches
// it; frames arriving with no handler are dropped.
func (s *Socket) SetHandler(handler func(Envelope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Emit queues a fire-and-forget envelope.
func (s *Socket) Emit(ctx context.Context, env Envelope) error {
	select {
	case s.send <- env:
		return nil
	case <-s.done:
		return errkind.Newf(errkind.KindTransport, "realtime.emit", "socket closed")
	case <-ctx.Done():
		return errkind.New(errkind.KindTransport, "realtime.emit", ctx.Err())
	}
}

// Request queues an envelope and blocks until the matching ack arrives, the
// context is cancelled, or the socket closes. An ack body carrying an error
// field is surfaced as an explicit rejection. Deadlines belong to the caller.
func (s *Socket) Request(ctx context.Context, env Envelope) (json.RawMessage, error) {
	reply := make(chan Envelope, 1)
	s.mu.Lock()
	s.pending[env.ID] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, env.ID)
		s.mu.Unlock()
	}()

	if err := s.Emit(ctx, env); err != nil {
		return nil, err
	}

	select {
	case ack := <-reply:
		var failure AckErrorPayload
		if err := json.Unmarshal(ack.Payload, &failure); err == nil && failure.Error != "" {
			return nil, errkind.Newf(errkind.KindAckRejected, "realtime.request", "%s", failure.Error)
		}
		return ack.Payload, nil
	case <-s.done:
		return nil, errkind.Newf(errkind.KindTransport, "realtime.request", "socket closed")
	case <-ctx.Done():
		return nil, errkind.New(errkind.KindTransport, "realtime.request", ctx.Err())
	}
}

// Close tears the connection down and unblocks every waiter.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *Socket) writePump() {
	ticker := time.NewTicker(s.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case env := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := s.conn.WriteJSON(env); err != nil {
				log.Error().Err(err).Str("event_type", string(env.Type)).Msg("failed to write envelope")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Socket) readPump() {
	defer s.Close()

	s.conn.SetReadLimit(s.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Msg("unexpected socket close")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Msg("dropping malformed envelope")
			continue
		}
		s.dispatch(env)
	}
}

func (s *Socket) dispatch(env Envelope) {
	if env.Type == EventAck {
		s.mu.Lock()
		reply, ok := s.pending[env.ID]
		s.mu.Unlock()
		if !ok {
			log.Debug().Str("event_id", env.ID.String()).Msg("ack with no pending request")
			return
		}
		select {
		case reply <- env:
		default:
		}
		return
	}

	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		log.Debug().Str("event_type", string(env.Type)).Msg("no handler attached, dropping event")
		return
	}
	handler(env)
}
