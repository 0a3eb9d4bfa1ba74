package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Payload is shared by requests and replies. Events are pushed as their own payload.
type Payload struct {
	Session string       `json:"session,omitempty"`
	Mode    string       `json:"mode,omitempty"`
	Mark    string       `json:"mark,omitempty"`
	Cell    *int         `json:"cell,omitempty"`
	Game    *entity.Game `json:"game,omitempty"`
	Error   string       `json:"error,omitempty"`
}
