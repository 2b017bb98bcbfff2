package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/Nikita-812/WebProject/internal/errkind"
	"github.com/Nikita-812/WebProject/internal/gateway"
	"github.com/Nikita-812/WebProject/internal/models"
	"github.com/Nikita-812/WebProject/internal/realtime"
)

// fakeConn satisfies realtime.Conn without a live socket.
type fakeConn struct {
	emitted []realtime.Envelope
	handler func(realtime.Envelope)
}

func (f *fakeConn) Emit(ctx context.Context, env realtime.Envelope) error {
	f.emitted = append(f.emitted, env)
	return nil
}

func (f *fakeConn) Request(ctx context.Context, env realtime.Envelope) (json.RawMessage, error) {
	return nil, errkind.Newf(errkind.KindTransport, "realtime.request", "not wired in this test")
}

func (f *fakeConn) SetHandler(handler func(realtime.Envelope)) {
	f.handler = handler
}

// boardFixture is a little fake backend for session tests.
type boardFixture struct {
	boardID   uuid.UUID
	projectID uuid.UUID
	column    models.Column
	card      models.Card

	updateStatus int32 // 0: succeed; 1: drop connection; 2: conflict
	cardGets     int32
}

func (fx *boardFixture) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("/projects/%s/board", fx.projectID), func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.BoardSnapshot{
			BoardID: fx.boardID,
			Columns: []models.Column{fx.column},
			Cards:   []models.Card{fx.card},
		})
	})
	mux.HandleFunc(fmt.Sprintf("/projects/%s/messages", fx.projectID), func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.Message{})
	})
	mux.HandleFunc("/cards/"+fx.card.ID.String(), func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			atomic.AddInt32(&fx.cardGets, 1)
			refreshed := fx.card
			refreshed.Title = "refetched"
			refreshed.Version = fx.card.Version + 1
			json.NewEncoder(w).Encode(refreshed)
		case http.MethodPatch:
			switch atomic.LoadInt32(&fx.updateStatus) {
			case 1:
				hj, ok := w.(http.Hijacker)
				require.True(t, ok)
				conn, _, err := hj.Hijack()
				require.NoError(t, err)
				conn.Close()
			case 2:
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(map[string]any{
					"detail": map[string]any{"serverVersion": 9, "serverState": fx.card},
				})
			default:
				updated := fx.card
				updated.Title = "saved"
				updated.Version = fx.card.Version + 1
				json.NewEncoder(w).Encode(updated)
			}
		}
	})
	return mux
}

func newFixture() *boardFixture {
	projectID := uuid.New()
	column := models.Column{ID: uuid.New(), BoardID: uuid.New(), Name: "Todo"}
	return &boardFixture{
		boardID:   column.BoardID,
		projectID: projectID,
		column:    column,
		card: models.Card{
			ID:        uuid.New(),
			ProjectID: projectID,
			ColumnID:  column.ID,
			Title:     "existing",
			Version:   3,
		},
	}
}

func newManager(t *testing.T, fx *boardFixture) (*Manager, *fakeConn) {
	t.Helper()
	server := httptest.NewServer(fx.handler(t))
	t.Cleanup(server.Close)

	conn := &fakeConn{}
	self := models.User{ID: uuid.New(), DisplayName: "Alice"}
	bridge := realtime.NewBridge(conn, self)
	manager := NewManager(gateway.NewClient(server.URL), bridge, clockwork.NewFakeClock(), self)
	return manager, conn
}

func TestSwitchHydratesRoom(t *testing.T) {
	fx := newFixture()
	manager, conn := newManager(t, fx)

	room, err := manager.Switch(context.Background(), fx.projectID)
	require.NoError(t, err)
	require.Equal(t, fx.projectID, room.ProjectID)
	require.Equal(t, fx.boardID, room.BoardID)
	require.Len(t, room.Board.Columns(), 1)
	require.Len(t, room.Board.Cards(), 1)
	require.Empty(t, room.Chat.Messages())
	require.NotNil(t, conn.handler)
	require.Same(t, room, manager.Active())
}

func TestSwitchIsolatesRooms(t *testing.T) {
	fx := newFixture()
	manager, conn := newManager(t, fx)

	first, err := manager.Switch(context.Background(), fx.projectID)
	require.NoError(t, err)

	// Re-joining builds a fresh session; the fixture serves the same board.
	second, err := manager.Switch(context.Background(), fx.projectID)
	require.NoError(t, err)
	require.NotSame(t, first, second)

	// An event stamped for a room other than the active one must not land.
	staleRoom := uuid.New()
	conn.handler(realtime.Envelope{
		ID:   uuid.New(),
		Room: staleRoom.String(),
		Type: realtime.EventCardMoved,
		Payload: json.RawMessage(fmt.Sprintf(
			`{"id": %q, "toColumnId": %q, "position": 0}`, fx.card.ID, uuid.New())),
	})
	got, ok := second.Board.Card(fx.card.ID)
	require.True(t, ok)
	require.Equal(t, fx.column.ID, got.ColumnID)

	// The first session's board was cleared on leave.
	require.Empty(t, first.Board.Cards())
}

func TestSaveCardAppliesCanonicalResponse(t *testing.T) {
	fx := newFixture()
	manager, _ := newManager(t, fx)
	_, err := manager.Switch(context.Background(), fx.projectID)
	require.NoError(t, err)

	title := "saved"
	card, err := manager.SaveCard(context.Background(), fx.card.ID, gateway.CardPatch{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "saved", card.Title)
	require.Equal(t, 4, card.Version)

	cached, _ := manager.Active().Board.Card(fx.card.ID)
	require.Equal(t, card, cached)
}

func TestSaveCardConflictIsSurfaced(t *testing.T) {
	fx := newFixture()
	fx.updateStatus = 2
	manager, _ := newManager(t, fx)
	_, err := manager.Switch(context.Background(), fx.projectID)
	require.NoError(t, err)

	title := "stale"
	_, err = manager.SaveCard(context.Background(), fx.card.ID, gateway.CardPatch{Title: &title})
	require.Error(t, err)
	require.Equal(t, errkind.KindVersionConflict, errkind.KindOf(err))

	// No fallback fetch on a version conflict.
	require.EqualValues(t, 0, atomic.LoadInt32(&fx.cardGets))

	cached, _ := manager.Active().Board.Card(fx.card.ID)
	require.Equal(t, "existing", cached.Title)
}

func TestSaveCardTransportFailureTriggersSingleRefetch(t *testing.T) {
	fx := newFixture()
	fx.updateStatus = 1
	manager, _ := newManager(t, fx)
	_, err := manager.Switch(context.Background(), fx.projectID)
	require.NoError(t, err)

	title := "unreachable"
	card, err := manager.SaveCard(context.Background(), fx.card.ID, gateway.CardPatch{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "refetched", card.Title)
	require.EqualValues(t, 1, atomic.LoadInt32(&fx.cardGets))

	cached, _ := manager.Active().Board.Card(fx.card.ID)
	require.Equal(t, "refetched", cached.Title)
}

func TestMutationsRequireActiveRoom(t *testing.T) {
	fx := newFixture()
	manager, _ := newManager(t, fx)

	_, err := manager.SaveCard(context.Background(), fx.card.ID, gateway.CardPatch{})
	require.Equal(t, errkind.KindPrecondition, errkind.KindOf(err))

	_, err = manager.SendChat(context.Background(), "hello")
	require.Equal(t, errkind.KindPrecondition, errkind.KindOf(err))

	err = manager.Typing(context.Background())
	require.Equal(t, errkind.KindPrecondition, errkind.KindOf(err))
}
