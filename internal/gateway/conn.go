package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sixplus/shortdeck/internal/game"
	"github.com/sixplus/shortdeck/internal/pubsub"
	"github.com/sixplus/shortdeck/internal/token"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection wraps one WebSocket client. It relays bus messages for the
// player's private topic and forwards commands into the queue and the game
// actors.
type Connection struct {
	ws   *websocket.Conn
	gw   *Server
	send chan Message
	log  zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu         sync.RWMutex
	playerName string
	gameID     string
	sub        *pubsub.Subscription
}

func newConnection(ws *websocket.Conn, gw *Server) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ws:     ws,
		gw:     gw,
		send:   make(chan Message, 256),
		log:    gw.log.With().Str("component", "conn").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Connection) start() {
	go c.writePump()
	go c.readPump()
}

// Close tears the connection down once; safe to call from any goroutine.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		if c.sub != nil {
			c.sub.Cancel()
			c.sub = nil
		}
		c.mu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// Send queues one message for the client, closing the connection when the
// buffer is full rather than blocking the game.
func (c *Connection) Send(msg Message) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.log.Warn().Str("player", c.player()).Msg("send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

func (c *Connection) player() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerName
}

func (c *Connection) gameFor() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gameID
}

func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) handleMessage(msg Message) {
	switch msg.Type {
	case MessageTypeAuth:
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_input", "failed to parse auth data")
			return
		}
		c.handleAuth(data)

	case MessageTypeQueueJoin:
		var data QueueJoinData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_input", "failed to parse queue join data")
			return
		}
		c.handleQueueJoin(data)

	case MessageTypeQueueLeave:
		c.handleQueueLeave()

	case MessageTypeAction:
		var data ActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_input", "failed to parse action data")
			return
		}
		c.handleAction(data)

	case MessageTypeState:
		c.handleState()

	default:
		c.sendError("invalid_input", "unknown message type: "+string(msg.Type))
	}
}

// handleAuth binds the connection to the seat named by a matchmaking token
// and starts relaying that player's snapshot stream.
func (c *Connection) handleAuth(data AuthData) {
	id, err := c.gw.signer.Verify(data.Token)
	if err != nil {
		c.sendError("invalid_token", "token rejected")
		return
	}
	if _, err := c.gw.sup.Get(id.GameID); err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}

	c.bind(id)
	c.log.Info().Str("player", id.PlayerName).Str("game_id", id.GameID).Msg("player authenticated")

	resp, _ := NewMessage(MessageTypeAuthResponse, AuthResponseData{
		GameID:     id.GameID,
		PlayerName: id.PlayerName,
	})
	_ = c.Send(resp)

	// Current state immediately, so reconnecting players resynchronize
	// without waiting for the next broadcast.
	c.handleState()
}

// bind subscribes the connection to its player topics, replacing any earlier
// subscription. Matchmaking publishes on player:{name}; once a game is known
// the per-game private feed game:{game_id}:{player_id} joins it.
func (c *Connection) bind(id token.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		c.sub.Cancel()
	}
	c.playerName = id.PlayerName
	c.gameID = id.GameID
	topics := []string{"player:" + id.PlayerName}
	if id.GameID != "" {
		topics = append(topics, "game:"+id.GameID+":"+id.PlayerName)
	}
	c.sub = c.gw.bus.Subscribe(topics...)
	go c.relay(c.sub)
}

// relay forwards bus messages to the client until the subscription or the
// connection closes.
func (c *Connection) relay(sub *pubsub.Subscription) {
	for {
		select {
		case busMsg, ok := <-sub.C:
			if !ok {
				return
			}
			msg, err := NewMessage(MessageType(busMsg.Kind), busMsg.Payload)
			if err != nil {
				c.log.Warn().Err(err).Str("kind", busMsg.Kind).Msg("dropping unencodable bus message")
				continue
			}
			if c.Send(msg) != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) handleQueueJoin(data QueueJoinData) {
	if data.PlayerName == "" {
		c.sendError("invalid_input", "player name required")
		return
	}

	// Subscribe before joining so a queue that fills instantly cannot race
	// the game_ready publish.
	c.bind(token.Identity{PlayerName: data.PlayerName})

	if err := c.gw.queue.Join(c.ctx, data.PlayerName); err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}
	resp, _ := NewMessage(MessageTypeQueued, QueueJoinData{PlayerName: data.PlayerName})
	_ = c.Send(resp)
}

func (c *Connection) handleQueueLeave() {
	name := c.player()
	if name == "" {
		c.sendError("invalid_input", "not authenticated")
		return
	}
	if err := c.gw.queue.Leave(name); err != nil {
		c.sendError(errorCode(err), err.Error())
	}
}

func (c *Connection) handleAction(data ActionData) {
	name, gameID := c.player(), c.gameFor()
	if name == "" || gameID == "" {
		c.sendError("invalid_input", "not authenticated")
		return
	}

	actionType, err := game.ParseActionType(data.Action)
	if err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}

	a, err := c.gw.sup.Get(gameID)
	if err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}
	if err := a.Act(c.ctx, name, game.Action{Type: actionType, Amount: data.Amount}); err != nil {
		c.sendError(errorCode(err), err.Error())
	}
	// No response on success; the actor broadcasts the new state.
}

func (c *Connection) handleState() {
	name, gameID := c.player(), c.gameFor()
	if gameID == "" {
		c.sendError("invalid_input", "not authenticated")
		return
	}

	a, err := c.gw.sup.Get(gameID)
	if err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}
	snap, err := a.State(c.ctx, name)
	if err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}
	msg, err := NewMessage("game_state", snap)
	if err != nil {
		c.log.Error().Err(err).Msg("encoding snapshot failed")
		return
	}
	_ = c.Send(msg)
}

func (c *Connection) sendError(code, message string) {
	msg, err := NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
	if err != nil {
		return
	}
	_ = c.Send(msg)
}

// errorCode maps engine errors to the stable reason strings of the wire
// protocol.
func errorCode(err error) string {
	var minRaise *game.BelowMinimumRaiseError
	switch {
	case errors.Is(err, game.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, game.ErrInvalidAction):
		return "invalid_action"
	case errors.Is(err, game.ErrNoActiveBettingRound):
		return "no_active_betting_round"
	case errors.Is(err, game.ErrInsufficientChips):
		return "insufficient_chips"
	case errors.Is(err, game.ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, game.ErrGameNotFound):
		return "game_not_found"
	case errors.As(err, &minRaise):
		return "below_minimum_raise"
	default:
		return "invalid_input"
	}
}
