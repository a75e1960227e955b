package gateway

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies a wire message.
type MessageType string

// Client-to-server message types.
const (
	MessageTypeAuth       MessageType = "auth"
	MessageTypeQueueJoin  MessageType = "queue_join"
	MessageTypeQueueLeave MessageType = "queue_leave"
	MessageTypeAction     MessageType = "action"
	MessageTypeState      MessageType = "state"
)

// Server-to-client message types. game_state, game_ready, queue_status and
// tournament_ended are forwarded from the pub/sub bus under their bus kinds.
const (
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeQueued       MessageType = "queued"
	MessageTypeError        MessageType = "error"
)

// Message is the wire envelope: a type tag and a type-specific payload.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage wraps a payload in the envelope.
func NewMessage(typ MessageType, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Message{Type: typ, Data: data}, nil
}

// AuthData carries the session token minted by matchmaking.
type AuthData struct {
	Token string `json:"token"`
}

// AuthResponseData confirms which seat the token unlocked.
type AuthResponseData struct {
	GameID     string `json:"game_id"`
	PlayerName string `json:"player_name"`
}

// QueueJoinData names the player entering matchmaking.
type QueueJoinData struct {
	PlayerName string `json:"player_name"`
}

// ActionData is one betting decision. Amount is the total committed this
// round for raises, ignored otherwise.
type ActionData struct {
	Action string `json:"action"`
	Amount int    `json:"amount,omitempty"`
}

// ErrorData reports a rejected command.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
