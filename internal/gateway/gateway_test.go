package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixplus/shortdeck/internal/eventlog"
	"github.com/sixplus/shortdeck/internal/metrics"
	"github.com/sixplus/shortdeck/internal/pubsub"
	"github.com/sixplus/shortdeck/internal/queue"
	"github.com/sixplus/shortdeck/internal/supervisor"
	"github.com/sixplus/shortdeck/internal/token"
	"github.com/sixplus/shortdeck/internal/view"
)

func newGateway(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	store, err := eventlog.OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bus := pubsub.New(zerolog.Nop())
	m := metrics.New()
	sup := supervisor.New(supervisor.Options{
		Store: store,
		Bus:   bus,
		Log:   zerolog.Nop(),
		Grace: time.Second,
	})
	t.Cleanup(sup.Shutdown)

	signer := token.NewSigner("test-secret")
	q := queue.New(queue.Options{
		Supervisor:     sup,
		Signer:         signer,
		Bus:            bus,
		Log:            zerolog.Nop(),
		PlayersPerGame: 2,
		StartingChips:  1000,
		SmallBlind:     10,
		BigBlind:       20,
	})

	gw := New(Options{
		Supervisor: sup,
		Queue:      q,
		Signer:     signer,
		Bus:        bus,
		Metrics:    m,
		Log:        zerolog.Nop(),
	})
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return gw, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, typ MessageType, payload any) {
	t.Helper()
	msg, err := NewMessage(typ, payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(msg))
}

// readUntil reads messages until one of the wanted type arrives, skipping
// interleaved broadcasts.
func readUntil(t *testing.T, ws *websocket.Conn, typ MessageType) Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg Message
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
		require.NotEqual(t, MessageTypeError, msg.Type, "unexpected error: %s", msg.Data)
	}
}

func decode[T any](t *testing.T, msg Message) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(msg.Data, &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newGateway(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newGateway(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRejectsBadToken(t *testing.T) {
	_, srv := newGateway(t)
	ws := dial(t, srv)

	send(t, ws, MessageTypeAuth, AuthData{Token: "garbage"})

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, ws.ReadJSON(&msg))
	require.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, "invalid_token", decode[ErrorData](t, msg).Code)
}

func TestActionRequiresAuth(t *testing.T) {
	_, srv := newGateway(t)
	ws := dial(t, srv)

	send(t, ws, MessageTypeAction, ActionData{Action: "call"})

	var msg Message
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, ws.ReadJSON(&msg))
	require.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, "invalid_input", decode[ErrorData](t, msg).Code)
}

func TestQueueToGameFlow(t *testing.T) {
	_, srv := newGateway(t)
	wsA := dial(t, srv)
	wsB := dial(t, srv)

	send(t, wsA, MessageTypeQueueJoin, QueueJoinData{PlayerName: "a"})
	readUntil(t, wsA, MessageTypeQueued)
	send(t, wsB, MessageTypeQueueJoin, QueueJoinData{PlayerName: "b"})

	readyA := decode[queue.GameReady](t, readUntil(t, wsA, "game_ready"))
	readyB := decode[queue.GameReady](t, readUntil(t, wsB, "game_ready"))
	require.Equal(t, readyA.GameID, readyB.GameID)

	// Authenticate both seats with their tokens.
	send(t, wsA, MessageTypeAuth, AuthData{Token: readyA.Token})
	auth := decode[AuthResponseData](t, readUntil(t, wsA, MessageTypeAuthResponse))
	assert.Equal(t, "a", auth.PlayerName)
	assert.Equal(t, readyA.GameID, auth.GameID)

	send(t, wsB, MessageTypeAuth, AuthData{Token: readyB.Token})
	readUntil(t, wsB, MessageTypeAuthResponse)

	// Each player sees their own cards, never the opponent's.
	snapA := decode[view.Snapshot](t, readUntil(t, wsA, "game_state"))
	require.Equal(t, 1, snapA.HandNumber)
	for _, seat := range snapA.Players {
		if seat.Name == "a" {
			assert.Len(t, seat.HoleCards, 2)
		} else {
			assert.Empty(t, seat.HoleCards)
		}
	}

	// Heads-up: the button acts first preflop, and seats fill in join order.
	require.Equal(t, "a", snapA.ActivePlayer)
	send(t, wsA, MessageTypeAction, ActionData{Action: "call"})

	snapB := decode[view.Snapshot](t, readUntil(t, wsB, "game_state"))
	for snapB.ActivePlayer != "b" {
		snapB = decode[view.Snapshot](t, readUntil(t, wsB, "game_state"))
	}
	assert.Equal(t, 40, snapB.Pot)
}

func TestOutOfTurnActionReturnsError(t *testing.T) {
	_, srv := newGateway(t)
	wsA := dial(t, srv)
	wsB := dial(t, srv)

	send(t, wsA, MessageTypeQueueJoin, QueueJoinData{PlayerName: "a"})
	readUntil(t, wsA, MessageTypeQueued)
	send(t, wsB, MessageTypeQueueJoin, QueueJoinData{PlayerName: "b"})

	readyB := decode[queue.GameReady](t, readUntil(t, wsB, "game_ready"))
	send(t, wsB, MessageTypeAuth, AuthData{Token: readyB.Token})
	readUntil(t, wsB, MessageTypeAuthResponse)

	// b is the big blind and does not act first.
	send(t, wsB, MessageTypeAction, ActionData{Action: "check"})

	require.NoError(t, wsB.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg Message
		require.NoError(t, wsB.ReadJSON(&msg))
		if msg.Type == MessageTypeError {
			assert.Equal(t, "not_your_turn", decode[ErrorData](t, msg).Code)
			return
		}
	}
}
